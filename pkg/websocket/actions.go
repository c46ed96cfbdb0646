package websocket

// FrameType enumerates the inbound and outbound frame types carried by the
// "type" field of a Frame (spec.md §4.8).
const (
	// Inbound (client -> server)
	FrameTypePrompt       = "prompt"
	FrameTypeCommand      = "command"
	FrameTypeInterrupt    = "interrupt"
	FrameTypeClearHistory = "clear_history"

	// Outbound (server -> client)
	FrameTypeWelcome   = "welcome"
	FrameTypeWorkspace = "workspace"
	FrameTypeHistory   = "history"
	FrameTypeDelta     = "delta"
	FrameTypePlan      = "plan"
	FrameTypePatch     = "patch"
	FrameTypeExplored  = "explored"
	FrameTypeResult    = "result"
	FrameTypeError     = "error"
	FrameTypeAck       = "ack"
)

// WebSocket close codes (spec.md §4.8, §6).
const (
	CloseCodeAuthRejected  = 4401
	CloseCodeAtCapacity    = 4409
	CloseCodeIdleLock      = 4400
)

// Error codes (spec.md §7 "Error kinds").
const (
	ErrorCodeValidation    = "VALIDATION_ERROR"
	ErrorCodeAuth          = "AUTH_ERROR"
	ErrorCodeCapacity      = "CAPACITY_ERROR"
	ErrorCodeNotFound      = "NOT_FOUND"
	ErrorCodeConstraint    = "CONSTRAINT_ERROR"
	ErrorCodeStorage       = "STORAGE_ERROR"
	ErrorCodeToolDisabled  = "TOOL_DISABLED"
	ErrorCodeToolPolicy    = "TOOL_POLICY"
	ErrorCodeToolTimeout   = "TOOL_TIMEOUT"
	ErrorCodeToolFailed    = "TOOL_EXECUTION_FAILED"
	ErrorCodeAdapterNotRdy = "ADAPTER_NOT_READY"
	ErrorCodeAdapterFailed = "ADAPTER_FAILED"
	ErrorCodeCancelled     = "CANCELLED"
	ErrorCodeUnknownAction = "UNKNOWN_ACTION"
	ErrorCodeInternal      = "INTERNAL_ERROR"
)
