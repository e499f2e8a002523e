package document

import (
	"fmt"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/colegio/core"
)

const maxFileSize = 10 * core.MiB

var (
	docCategoryTag  = "doccategory"
	docCategoryText = "invalid document category"

	// allowedMimeTypes maps accepted mime types to the extension used when the file name has none.
	allowedMimeTypes = map[string]string{
		"application/pdf": "pdf",

		"application/msword": "doc",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "docx",

		"application/vnd.ms-excel": "xls",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": "xlsx",

		"application/vnd.ms-powerpoint": "ppt",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation": "pptx",

		"image/jpeg": "jpg",
		"image/png":  "png",
		"image/webp": "webp",
	}
)

// InitValidators registers the document validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(docCategoryTag, core.OneOfValidation(categoryValues()...))
	core.RegisterCustomTranslation(validate, translator, docCategoryTag, docCategoryText)
}

func validateFile(file *core.UploadedFile) error {
	if file == nil || file.Body == nil {
		return core.InvalidFile("A file is required")
	}
	if file.Size <= 0 {
		return core.InvalidFile("The file is empty")
	}
	if file.Size > maxFileSize {
		return core.InvalidFile(fmt.Sprintf("The file exceeds the maximum size of %d MB", maxFileSize/core.MiB))
	}
	if _, ok := allowedMimeTypes[file.MimeType]; !ok {
		return core.InvalidFile(fmt.Sprintf("File type %q is not allowed. Allowed: PDF, Word, Excel, PowerPoint and images (JPEG, PNG, WEBP)", file.MimeType))
	}
	return nil
}

func fileExt(file *core.UploadedFile) string {
	if ext := core.FileExt(file.FileName); ext != "" {
		return ext
	}
	return allowedMimeTypes[file.MimeType]
}
