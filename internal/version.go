package internal

// CurrentVersion is overwritten by ldflags during build.
var CurrentVersion = "v0.1.0"

// AppID identifies webidctl in the SDK user agent.
func AppID() string {
	return "webidctl/" + CurrentVersion
}
