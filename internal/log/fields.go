package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldQuery      = "query"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldReferer    = "referer"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldYear       = "year"
	FieldMonth      = "month"
	FieldPillar     = "pillar"
	FieldUnit       = "unit"
	FieldField      = "field"
	FieldRevision   = "revision"
	FieldLogin      = "login"
	FieldUserID     = "user_id"
	FieldApplied    = "rows_applied"
	FieldSkipped    = "rows_skipped"
	FieldBytes      = "bytes"
)

// Components
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentLedger   = "ledger"
	ComponentUsers    = "users"
	ComponentImpExp   = "impexp"
	ComponentStorage  = "storage"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentCache    = "cache"
	ComponentSecurity = "security"
	ComponentBackend  = "backend"
	ComponentTemplate = "template"
	ComponentCLI      = "cli"
)

// Operations
const (
	OpMaterialize = "materialize"
	OpSetField    = "set_field"
	OpFlush       = "flush"
	OpRestore     = "restore"
	OpClear       = "clear"
	OpImport      = "import"
	OpExport      = "export"
	OpLogin       = "login"
	OpLogout      = "logout"
	OpAddUser     = "add_user"
	OpRemoveUser  = "remove_user"
	OpBackup      = "backup"
	OpRender      = "render"
	OpStartup     = "startup"
	OpShutdown    = "shutdown"
)

// LogFields is a builder for structured log attributes.
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithSlot adds the ledger coordinates of a record.
func (f LogFields) WithSlot(year int, month, pillar, unit string) LogFields {
	f[FieldYear] = year
	if month != "" {
		f[FieldMonth] = month
	}
	if pillar != "" {
		f[FieldPillar] = pillar
	}
	if unit != "" {
		f[FieldUnit] = unit
	}
	return f
}

func (f LogFields) WithRevision(rev int64) LogFields {
	f[FieldRevision] = rev
	return f
}

func (f LogFields) WithHTTPRequest(method, path, query, userAgent, referer string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	if userAgent != "" {
		f[FieldUserAgent] = userAgent
	}
	if referer != "" {
		f[FieldReferer] = referer
	}
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice flattens the fields into slog key/value arguments.
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
