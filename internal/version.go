package internal

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the current version of chatline.
const Version = "0.3.0"

// BuildVersion returns the version string with the VCS revision when the
// binary was built from a checkout.
func BuildVersion() string {
	revision := ""
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && len(setting.Value) >= 7 {
				revision = setting.Value[:7]
			}
		}
	}
	if revision == "" {
		return fmt.Sprintf("chatline %s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
	}
	return fmt.Sprintf("chatline %s-%s (%s/%s)", Version, revision, runtime.GOOS, runtime.GOARCH)
}
