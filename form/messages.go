package form

import (
	"golang.org/x/text/language"
)

// Notice 面向用户的错误提示，渲染时按语言翻译
type Notice string

const (
	NoticeNone             Notice = ""
	NoticeInvalidFileType  Notice = "invalid_file_type"
	NoticeMissingInput     Notice = "missing_input"
	NoticeProcessingFailed Notice = "processing_failed"
)

// Locale 一种界面语言的全部文案
type Locale struct {
	Tag     language.Tag
	Dir     string
	UI      map[string]string
	Notices map[Notice]string
}

// Message 翻译提示；未知的提示原样返回
func (l *Locale) Message(n Notice) string {
	if n == NoticeNone {
		return ""
	}
	if msg, ok := l.Notices[n]; ok {
		return msg
	}
	return string(n)
}

// T 界面文案
func (l *Locale) T(key string) string {
	if s, ok := l.UI[key]; ok {
		return s
	}
	return key
}

var arabic = &Locale{
	Tag: language.Arabic,
	Dir: "rtl",
	UI: map[string]string{
		"title":        "مزيل الخلفية الإحترافي",
		"subtitle":     "مدعوم بنموذج Gemini Nano Banana لإزالة الخلفية بدقة فائقة",
		"settings":     "1. إعدادات الصورة",
		"choose":       "انقر لاختيار صورة",
		"formats":      "PNG, JPG, WEBP",
		"upload":       "رفع الصورة",
		"prompt_label": "2. العناصر المراد الاحتفاظ بها",
		"placeholder":  "مثال: الشخص الذي يرتدي قبعة حمراء، السيارة الزرقاء...",
		"submit":       "إزالة الخلفية",
		"processing":   "جاري المعالجة...",
		"reset":        "مسح",
		"result":       "النتيجة النهائية",
		"working":      "يقوم الذكاء الاصطناعي بسحره...",
		"working_hint": "قد تستغرق هذه العملية بضع لحظات",
		"empty":        "ستظهر صورتك النهائية هنا",
		"download":     "تحميل الصورة",
	},
	Notices: map[Notice]string{
		NoticeInvalidFileType:  "الرجاء اختيار ملف صورة صالح.",
		NoticeMissingInput:     "الرجاء تحميل صورة وكتابة وصف للعناصر المراد الاحتفاظ بها.",
		NoticeProcessingFailed: "حدث خطأ أثناء معالجة الصورة. الرجاء المحاولة مرة أخرى.",
	},
}

var english = &Locale{
	Tag: language.English,
	Dir: "ltr",
	UI: map[string]string{
		"title":        "Pro Background Remover",
		"subtitle":     "Powered by Gemini Nano Banana for precise background removal",
		"settings":     "1. Image settings",
		"choose":       "Click to choose an image",
		"formats":      "PNG, JPG, WEBP",
		"upload":       "Upload image",
		"prompt_label": "2. Elements to keep",
		"placeholder":  "e.g. the person wearing a red hat, the blue car...",
		"submit":       "Remove background",
		"processing":   "Processing...",
		"reset":        "Clear",
		"result":       "Final result",
		"working":      "The AI is working its magic...",
		"working_hint": "This may take a few moments",
		"empty":        "Your final image will appear here",
		"download":     "Download image",
	},
	Notices: map[Notice]string{
		NoticeInvalidFileType:  "Please choose a valid image file.",
		NoticeMissingInput:     "Please upload an image and describe the elements to keep.",
		NoticeProcessingFailed: "Something went wrong while processing the image. Please try again.",
	},
}

// 第一个为默认语言
var locales = []*Locale{arabic, english}

var matcher = language.NewMatcher([]language.Tag{arabic.Tag, english.Tag})

// MatchLocale 按 Accept-Language 选择语言，默认阿拉伯语
func MatchLocale(acceptLanguage string) *Locale {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return locales[0]
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return locales[0]
	}
	return locales[idx]
}
