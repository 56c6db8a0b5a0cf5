package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Attempt ───────────────────────────────────────────────────────
	ErrPaperNotFound     ErrCode = "PAPER_NOT_FOUND"
	ErrNoQuestions       ErrCode = "NO_QUESTIONS"
	ErrInvalidPaper      ErrCode = "INVALID_PAPER"
	ErrAttemptNotFound   ErrCode = "ATTEMPT_NOT_FOUND"
	ErrNoLastAttempt     ErrCode = "NO_LAST_ATTEMPT"
	ErrSessionNotRunning ErrCode = "SESSION_NOT_RUNNING"
	ErrUnknownQuestion   ErrCode = "UNKNOWN_QUESTION"
	ErrUnknownOption     ErrCode = "UNKNOWN_OPTION"
	ErrSubmitInProgress  ErrCode = "SUBMIT_IN_PROGRESS"
	ErrAlreadyCompleted  ErrCode = "ALREADY_COMPLETED"
	ErrSubmissionFailed  ErrCode = "SUBMISSION_FAILED"
	ErrUpstream          ErrCode = "LMS_UNAVAILABLE"

	// ─── Media ─────────────────────────────────────────────────────────
	ErrUnsupportedFile ErrCode = "UNSUPPORTED_FILE_TYPE"
	ErrFileTooLarge    ErrCode = "FILE_TOO_LARGE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrTokenExpired:
		return "Token autentikasi telah kedaluwarsa."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."
	case ErrAdminAccessOnly:
		return "Sumber daya ini terbatas untuk administrator."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Attempt ───────────────────────────────────────────────────────
	case ErrPaperNotFound:
		return "Paket soal tidak ditemukan."
	case ErrNoQuestions:
		return "Paket soal ini tidak memiliki pertanyaan."
	case ErrInvalidPaper:
		return "Paket soal tidak dapat dimuat."
	case ErrAttemptNotFound:
		return "Tidak ada pengerjaan aktif untuk paket soal ini."
	case ErrNoLastAttempt:
		return "Belum ada tes yang dikerjakan."
	case ErrSessionNotRunning:
		return "Tes tidak sedang berjalan."
	case ErrUnknownQuestion:
		return "Pertanyaan tidak dikenal."
	case ErrUnknownOption:
		return "Pilihan jawaban tidak dikenal."
	case ErrSubmitInProgress:
		return "Jawaban sedang dikirim."
	case ErrAlreadyCompleted:
		return "Tes ini sudah selesai dinilai."
	case ErrSubmissionFailed:
		return "Gagal mengirim jawaban. Jawaban Anda tersimpan, silakan coba lagi."
	case ErrUpstream:
		return "Layanan LMS sedang tidak tersedia."

	// ─── Media ─────────────────────────────────────────────────────────
	case ErrUnsupportedFile:
		return "Jenis file tidak didukung."
	case ErrFileTooLarge:
		return "Ukuran file melebihi batas."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
