package task

import (
	"fmt"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/colegio/core"
)

const maxEvidenceSize = 5 * core.MiB

var (
	taskCategoryTag  = "taskcategory"
	taskCategoryText = "invalid task category"

	taskPriorityTag  = "taskpriority"
	taskPriorityText = "invalid task priority"

	leaderAreaTag  = "leaderarea"
	leaderAreaText = "invalid management area"

	verifyStatusTag  = "verifystatus"
	verifyStatusText = "status must be one of APPROVED or REJECTED"

	allowedEvidenceTypes = map[string]string{
		"application/pdf": "pdf",
		"image/jpeg":      "jpg",
		"image/png":       "png",
		"image/webp":      "webp",
		"image/gif":       "gif",

		"application/msword": "doc",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "docx",
	}
)

// InitValidators registers the task validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(taskCategoryTag, core.OneOfValidation(toStrings(Categories)...))
	core.RegisterCustomTranslation(validate, translator, taskCategoryTag, taskCategoryText)

	_ = validate.RegisterValidation(taskPriorityTag, core.OneOfValidation(toStrings(Priorities)...))
	core.RegisterCustomTranslation(validate, translator, taskPriorityTag, taskPriorityText)

	_ = validate.RegisterValidation(leaderAreaTag, core.OneOfValidation(toStrings(Areas)...))
	core.RegisterCustomTranslation(validate, translator, leaderAreaTag, leaderAreaText)

	_ = validate.RegisterValidation(verifyStatusTag, core.OneOfValidation(string(StatusApproved), string(StatusRejected)))
	core.RegisterCustomTranslation(validate, translator, verifyStatusTag, verifyStatusText)
}

func toStrings[T ~string](values []T) []string {
	strs := make([]string, 0, len(values))
	for _, v := range values {
		strs = append(strs, string(v))
	}
	return strs
}

func validateEvidence(file *core.UploadedFile) error {
	if file.Size <= 0 {
		return core.InvalidFile("The evidence file is empty")
	}
	if file.Size > maxEvidenceSize {
		return core.InvalidFile(fmt.Sprintf("The evidence file exceeds the maximum size of %d MB", maxEvidenceSize/core.MiB))
	}
	if _, ok := allowedEvidenceTypes[file.MimeType]; !ok {
		return core.InvalidFile(fmt.Sprintf("File type %q is not allowed. Allowed: PDF, images and Word", file.MimeType))
	}
	return nil
}

func evidenceExt(file *core.UploadedFile) string {
	if ext := core.FileExt(file.FileName); ext != "" {
		return ext
	}
	return allowedEvidenceTypes[file.MimeType]
}
