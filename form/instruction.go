package form

import "strings"

// DefaultInstructionTemplate 发给模型的指令，%s 处替换为用户描述的保留对象
const DefaultInstructionTemplate = `مهمتك هي إزالة خلفية هذه الصورة بدقة متناهية. احتفظ فقط بـ: "%s". يجب أن تكون النتيجة النهائية صورة بصيغة PNG بخلفية شفافة. لا تقم بتغيير أي تفاصيل في العنصر المحدد.`

// BuildInstruction 生成指令；模板里没有 %s 时把描述追加在末尾
func BuildInstruction(template, prompt string) string {
	if template == "" {
		template = DefaultInstructionTemplate
	}
	if !strings.Contains(template, "%s") {
		return template + " " + prompt
	}
	return strings.Replace(template, "%s", prompt, 1)
}
