package errors

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes shared by every layer.
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_003"
	ErrCodeConflict           ErrorCode = "COMMON_004"
	ErrCodeTimeout            ErrorCode = "COMMON_005"
	ErrCodeValidation         ErrorCode = "COMMON_006"
	ErrCodeSerialization      ErrorCode = "COMMON_007"
	ErrCodeDatabaseError      ErrorCode = "COMMON_008"
	ErrCodeCacheError         ErrorCode = "COMMON_009"
	ErrCodeExternalService    ErrorCode = "COMMON_010"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_011"
	ErrCodeConfiguration      ErrorCode = "COMMON_012"
)

// Training-pipeline error codes.
const (
	ErrCodeTrainingFailed     ErrorCode = "TRAIN_001"
	ErrCodeEmptyTrainingSet   ErrorCode = "TRAIN_002"
	ErrCodeVectorizeFailed    ErrorCode = "TRAIN_003"
	ErrCodeClusteringFailed   ErrorCode = "TRAIN_004"
	ErrCodeClassifierFailed   ErrorCode = "TRAIN_005"
	ErrCodeSlotTaggerFailed   ErrorCode = "TRAIN_006"
	ErrCodeModelSerialization ErrorCode = "TRAIN_007"
)

// Prediction-pipeline error codes.
const (
	ErrCodeModelNotFound       ErrorCode = "PREDICT_001"
	ErrCodeModelNotTrained     ErrorCode = "PREDICT_002"
	ErrCodeUnsupportedLanguage ErrorCode = "PREDICT_003"
	ErrCodeEmptyInput          ErrorCode = "PREDICT_004"
)

// Language-provider error codes.
const (
	ErrCodeNoProvider       ErrorCode = "PROVIDER_001"
	ErrCodeProviderCooldown ErrorCode = "PROVIDER_002"
	ErrCodeTokenizeFailed   ErrorCode = "PROVIDER_003"
)

// Aliases kept for call-site brevity.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeUnknown      = ErrorCode("UNKNOWN")
	CodeOK           = ErrorCode("OK")
)
