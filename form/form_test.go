package form

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/chaos-io/rembg-form/rembg/mocks"
)

func jpegFile(t *testing.T, name string) File {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 3)), nil))
	return File{Name: name, ContentType: "image/jpeg", Data: buf.Bytes()}
}

func pngFile(t *testing.T, name string) File {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 2, 2))))
	return File{Name: name, ContentType: "image/png", Data: buf.Bytes()}
}

const resultPayload = "cmVzdWx0LXBuZw=="

func TestForm_SelectImage_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file File
	}{
		{name: "声明类型不是图片", file: File{Name: "notes.txt", ContentType: "text/plain", Data: []byte("hello")}},
		{name: "声明为图片但内容不是", file: File{Name: "fake.png", ContentType: "image/png", Data: []byte("hello")}},
		{name: "没有声明类型", file: File{Name: "blob", Data: []byte{0x89, 'P', 'N', 'G'}}},
		{name: "空文件", file: File{Name: "empty.jpg", ContentType: "image/jpeg"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := New(mocks.NewMockRemover(gomock.NewController(t)))
			err := f.SelectImage(tt.file)
			assert.ErrorIs(t, err, ErrInvalidFileType)

			s := f.Snapshot()
			assert.Nil(t, s.Image)
			assert.Equal(t, NoticeInvalidFileType, s.Error)
			assert.Equal(t, StatusError, s.Status())
		})
	}
}

func TestForm_SelectImage_Valid(t *testing.T) {
	t.Parallel()

	file := jpegFile(t, "cat.jpg")
	f := New(mocks.NewMockRemover(gomock.NewController(t)))
	require.NoError(t, f.SelectImage(file))

	s := f.Snapshot()
	require.NotNil(t, s.Image)
	assert.Equal(t, "cat.jpg", s.Image.Name)
	assert.Equal(t, "image/jpeg", s.Image.MimeType)
	assert.Equal(t, len(file.Data), s.Image.Size)
	assert.Equal(t, 4, s.Image.Width)
	assert.Equal(t, 3, s.Image.Height)
	assert.Equal(t, "data:image/jpeg;base64,"+base64.StdEncoding.EncodeToString(file.Data), s.Image.DataURL)
	assert.Equal(t, StatusIdle, s.Status())
}

func TestForm_SelectImage_TooLarge(t *testing.T) {
	t.Parallel()

	file := jpegFile(t, "cat.jpg")
	f := New(mocks.NewMockRemover(gomock.NewController(t)), WithMaxImageBytes(len(file.Data)-1))
	assert.ErrorIs(t, f.SelectImage(file), ErrInvalidFileType)
	assert.Nil(t, f.Snapshot().Image)
	assert.Equal(t, NoticeInvalidFileType, f.Snapshot().Error)

	f = New(mocks.NewMockRemover(gomock.NewController(t)), WithMaxImageBytes(len(file.Data)))
	assert.NoError(t, f.SelectImage(file))
}

func TestForm_SelectImage_ClearsErrorAndResult(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	remover := mocks.NewMockRemover(ctrl)
	remover.EXPECT().Remove(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(resultPayload, nil)

	f := New(remover)
	require.NoError(t, f.SelectImage(jpegFile(t, "cat.jpg")))
	f.EditPrompt("the cat")
	require.NoError(t, f.Submit(context.Background()))
	require.NotEmpty(t, f.Snapshot().Result)

	require.Error(t, f.SelectImage(File{Name: "a.txt", ContentType: "text/plain", Data: []byte("x")}))
	s := f.Snapshot()
	assert.Equal(t, NoticeInvalidFileType, s.Error)
	assert.Equal(t, "cat.jpg", s.Image.Name)

	require.NoError(t, f.SelectImage(pngFile(t, "dog.png")))
	s = f.Snapshot()
	assert.Equal(t, NoticeNone, s.Error)
	assert.Empty(t, s.Result)
	assert.Equal(t, "dog.png", s.Image.Name)
	assert.Equal(t, "the cat", s.Prompt)
}

func TestForm_Submit_MissingInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		image  bool
		prompt string
	}{
		{name: "没有图片也没有描述"},
		{name: "没有描述", image: true},
		{name: "没有图片", prompt: "the cat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// 没有 EXPECT，任何远端调用都会让测试失败
			f := New(mocks.NewMockRemover(gomock.NewController(t)))
			if tt.image {
				require.NoError(t, f.SelectImage(jpegFile(t, "cat.jpg")))
			}
			f.EditPrompt(tt.prompt)

			err := f.Submit(context.Background())
			assert.ErrorIs(t, err, ErrMissingInput)

			s := f.Snapshot()
			assert.Equal(t, NoticeMissingInput, s.Error)
			assert.False(t, s.Loading)
			assert.Empty(t, s.Result)
		})
	}
}

func TestForm_Submit_Success(t *testing.T) {
	t.Parallel()

	file := jpegFile(t, "cat.jpg")
	ctrl := gomock.NewController(t)
	remover := mocks.NewMockRemover(ctrl)
	remover.EXPECT().
		Remove(gomock.Any(), base64.StdEncoding.EncodeToString(file.Data), "image/jpeg", gomock.Any()).
		DoAndReturn(func(ctx context.Context, payload, mimeType, instruction string) (string, error) {
			assert.Contains(t, instruction, `"the cat"`)
			assert.Contains(t, instruction, "PNG")
			return resultPayload, nil
		}).
		Times(1)

	f := New(remover)
	require.NoError(t, f.SelectImage(file))
	f.EditPrompt("the cat")
	require.NoError(t, f.Submit(context.Background()))

	s := f.Snapshot()
	assert.Equal(t, "data:image/png;base64,"+resultPayload, s.Result)
	assert.False(t, s.Loading)
	assert.Equal(t, NoticeNone, s.Error)
	assert.Equal(t, StatusSuccess, s.Status())
	assert.Equal(t, "result_cat.jpg", s.DownloadName())

	data, ok := f.ResultPNG()
	require.True(t, ok)
	assert.Equal(t, "result-png", string(data))
}

func TestForm_Submit_CustomInstruction(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	remover := mocks.NewMockRemover(ctrl)
	remover.EXPECT().Remove(gomock.Any(), gomock.Any(), "image/png", "Keep only: the red car").Return(resultPayload, nil)

	f := New(remover, WithInstructionTemplate("Keep only: %s"))
	require.NoError(t, f.SelectImage(pngFile(t, "car.png")))
	f.EditPrompt("the red car")
	assert.NoError(t, f.Submit(context.Background()))
}

func TestForm_Submit_Failure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result string
		err    error
	}{
		{name: "远端报错", err: errors.New("503 model overloaded")},
		{name: "远端返回空结果"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			remover := mocks.NewMockRemover(ctrl)
			remover.EXPECT().Remove(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(tt.result, tt.err).Times(1)

			f := New(remover)
			require.NoError(t, f.SelectImage(jpegFile(t, "cat.jpg")))
			f.EditPrompt("the cat")

			err := f.Submit(context.Background())
			assert.ErrorIs(t, err, ErrRemote)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			}

			s := f.Snapshot()
			assert.Equal(t, NoticeProcessingFailed, s.Error)
			assert.Empty(t, s.Result)
			assert.False(t, s.Loading)
			assert.Equal(t, StatusError, s.Status())

			_, ok := f.ResultPNG()
			assert.False(t, ok)
		})
	}
}

// blockingRemover 在 release 关闭前阻塞
func blockingRemover(t *testing.T, release <-chan struct{}, times int) *mocks.MockRemover {
	ctrl := gomock.NewController(t)
	remover := mocks.NewMockRemover(ctrl)
	remover.EXPECT().
		Remove(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, payload, mimeType, instruction string) (string, error) {
			<-release
			return resultPayload, nil
		}).
		Times(times)
	return remover
}

func TestForm_SubmitAsync_OneInFlight(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	f := New(blockingRemover(t, release, 1))
	require.NoError(t, f.SelectImage(jpegFile(t, "cat.jpg")))
	f.EditPrompt("the cat")

	done, err := f.SubmitAsync(context.Background())
	require.NoError(t, err)

	s := f.Snapshot()
	assert.True(t, s.Loading)
	assert.Equal(t, StatusLoading, s.Status())
	assert.False(t, s.CanSubmit())

	// 加载中再次提交、更换图片都被拒绝
	_, err = f.SubmitAsync(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, f.Submit(context.Background()), ErrBusy)
	assert.ErrorIs(t, f.SelectImage(pngFile(t, "dog.png")), ErrBusy)

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("submit did not finish")
	}

	s = f.Snapshot()
	assert.False(t, s.Loading)
	assert.Equal(t, StatusSuccess, s.Status())
	assert.Equal(t, "cat.jpg", s.Image.Name)
}

func TestForm_Reset(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	remover := mocks.NewMockRemover(ctrl)
	remover.EXPECT().Remove(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(resultPayload, nil)

	f := New(remover)
	f.Reset()
	assert.Equal(t, State{}, f.Snapshot())

	require.NoError(t, f.SelectImage(jpegFile(t, "cat.jpg")))
	f.EditPrompt("the cat")
	require.NoError(t, f.Submit(context.Background()))

	f.Reset()
	assert.Equal(t, State{}, f.Snapshot())
	assert.Equal(t, StatusIdle, f.Snapshot().Status())

	require.Error(t, f.Submit(context.Background()))
	f.Reset()
	assert.Equal(t, State{}, f.Snapshot())
}

func TestForm_Reset_WhileLoading(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	f := New(blockingRemover(t, release, 2))
	require.NoError(t, f.SelectImage(jpegFile(t, "cat.jpg")))
	f.EditPrompt("the cat")

	done, err := f.SubmitAsync(context.Background())
	require.NoError(t, err)

	// 旧请求还没结束，清空后仍然显示 Loading
	f.Reset()
	s := f.Snapshot()
	assert.Equal(t, State{Loading: true}, s)
	assert.Equal(t, StatusLoading, s.Status())
	assert.False(t, s.CanSubmit())

	assert.ErrorIs(t, f.SelectImage(pngFile(t, "dog.png")), ErrBusy)
	f.EditPrompt("the dog")
	assert.ErrorIs(t, f.Submit(context.Background()), ErrBusy)
	assert.Equal(t, StatusLoading, f.Snapshot().Status())

	close(release)
	<-done

	// 旧结果被丢弃，表单回到 Idle
	s = f.Snapshot()
	assert.Empty(t, s.Result)
	assert.False(t, s.Loading)
	assert.Nil(t, s.Image)
	assert.Equal(t, "the dog", s.Prompt)
	assert.Equal(t, StatusIdle, s.Status())

	// 之后有效的提交会调用远端服务
	require.NoError(t, f.SelectImage(pngFile(t, "dog.png")))
	require.NoError(t, f.Submit(context.Background()))
	s = f.Snapshot()
	assert.Equal(t, StatusSuccess, s.Status())
	assert.Equal(t, "result_dog.png", s.DownloadName())
}

func TestForm_Reset_AfterStaleFailure(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	remover := mocks.NewMockRemover(gomock.NewController(t))
	remover.EXPECT().
		Remove(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, payload, mimeType, instruction string) (string, error) {
			<-release
			return "", errors.New("model overloaded")
		})

	f := New(remover)
	require.NoError(t, f.SelectImage(jpegFile(t, "cat.jpg")))
	f.EditPrompt("the cat")
	done, err := f.SubmitAsync(context.Background())
	require.NoError(t, err)

	f.Reset()
	close(release)
	assert.ErrorIs(t, <-done, ErrRemote)

	// 被清空的表单不显示旧请求的错误
	s := f.Snapshot()
	assert.Equal(t, State{}, s)
	assert.Equal(t, StatusIdle, s.Status())
}

func TestForm_EditPrompt(t *testing.T) {
	t.Parallel()

	f := New(mocks.NewMockRemover(gomock.NewController(t)))
	f.EditPrompt("  the person wearing a red hat\n")
	assert.Equal(t, "  the person wearing a red hat\n", f.Snapshot().Prompt)
}

func TestForm_Snapshot_IsCopy(t *testing.T) {
	t.Parallel()

	f := New(mocks.NewMockRemover(gomock.NewController(t)))
	require.NoError(t, f.SelectImage(jpegFile(t, "cat.jpg")))

	s := f.Snapshot()
	s.Image.Name = "changed.jpg"
	assert.Equal(t, "cat.jpg", f.Snapshot().Image.Name)
}

func TestState_DownloadName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "result_image.png", State{}.DownloadName())
	assert.Equal(t, "result_cat.jpg", State{Image: &SelectedImage{Name: "cat.jpg"}}.DownloadName())
}

func TestStatus_String(t *testing.T) {
	t.Parallel()

	for s, want := range map[Status]string{
		StatusIdle:    "idle",
		StatusLoading: "loading",
		StatusError:   "error",
		StatusSuccess: "success",
	} {
		text, err := s.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, want, string(text))

		var back Status
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, s, back)
	}
	var bad Status
	assert.Error(t, bad.UnmarshalText([]byte("done")))
	assert.True(t, strings.HasPrefix(Status(42).String(), "status("))
}
