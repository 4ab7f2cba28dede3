package browser

import (
	"time"

	"github.com/awss/awss/internal/access"
	"github.com/awss/awss/internal/awsconfig"
)

// Severity classifies a notification.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// RowKind discriminates the entries of a content view.
type RowKind int

const (
	RowBucket RowKind = iota
	RowDir
	RowObject
	RowError
)

// Row is one entry of the content view: a bucket, a folder, an object,
// or an inline error placeholder.
type Row struct {
	Kind         RowKind
	Name         string
	Key          string
	Size         int64
	SizeText     string
	Modified     *time.Time
	StorageClass string
	Profile      awsconfig.Profile
	Access       access.Level
	IsEmpty      bool
	Favorite     bool
	Message      string
}

// Preview is the state of the object preview pane. Offset is the byte
// position the next incremental read continues from.
type Preview struct {
	Bucket    string
	Key       string
	Data      []byte
	TotalSize *int64
	Truncated bool
	Offset    int64
}

// Emitter receives state-change events from the controller. All calls
// happen outside the controller's lock; implementations may be slow or
// re-enter the controller.
type Emitter interface {
	TreeChildrenUpdated(parent Context, children []Context)
	RowsUpdated(view Context, rows []Row)
	HistoryState(canBack, canForward bool)
	ProfileIndicator(bucket string, profile awsconfig.Profile, level access.Level)
	ResolutionProgress(done, total int)
	PreviewUpdated(preview Preview)
	Notify(message string, severity Severity)
}
