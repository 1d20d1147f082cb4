// Package buildconfig exposes build-time identity stamped in via ldflags.
package buildconfig

var (
	version = "dev"
	commit  = "unknown"
)

func Version() string { return version }

func Commit() string { return commit }

// UserAgent identifies this process on outbound marketplace requests.
func UserAgent() string {
	return "agora/" + version
}
