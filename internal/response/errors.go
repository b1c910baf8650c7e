package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidAnswer  ErrCode = "INVALID_ANSWER"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound         ErrCode = "NOT_FOUND"
	ErrQuestionNotFound ErrCode = "QUESTION_NOT_FOUND"
	ErrNoActiveSession  ErrCode = "NO_ACTIVE_SESSION"

	// ─── Session ───────────────────────────────────────────────────────
	ErrSessionNotActive    ErrCode = "SESSION_NOT_ACTIVE"
	ErrSessionNotSubmitted ErrCode = "SESSION_NOT_SUBMITTED"
	ErrSessionStopped      ErrCode = "SESSION_STOPPED"

	// ─── Backend ───────────────────────────────────────────────────────
	ErrBackendUnavailable ErrCode = "BACKEND_UNAVAILABLE"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."
	case ErrInvalidAnswer:
		return "Jawaban tidak sesuai dengan pilihan soal."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."
	case ErrQuestionNotFound:
		return "Soal tidak ditemukan dalam ujian ini."
	case ErrNoActiveSession:
		return "Belum ada sesi ujian yang dibuka."

	// ─── Session ───────────────────────────────────────────────────────
	case ErrSessionNotActive:
		return "Sesi ujian tidak sedang berlangsung."
	case ErrSessionNotSubmitted:
		return "Ujian belum dikumpulkan."
	case ErrSessionStopped:
		return "Sesi ujian sudah dihentikan."

	// ─── Backend ───────────────────────────────────────────────────────
	case ErrBackendUnavailable:
		return "Server ujian tidak dapat dihubungi. Silakan coba lagi."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
