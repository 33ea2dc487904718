package version

import (
	"encoding/json"
	"log/slog"
	"os"
)

// Version may be set at build time with -ldflags "-X ...version.Version=...".
var Version = ""

type Info struct {
	Version string `json:"version"`
}

// Load reads the version from path unless it was set at build time.
func Load(path string, log *slog.Logger) Info {
	if Version != "" {
		return Info{Version: Version}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("could not read version file", "path", path, "error", err)
		return Info{Version: "0.0.0"}
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil || info.Version == "" {
		log.Warn("could not parse version file", "path", path, "error", err)
		return Info{Version: "0.0.0"}
	}
	return info
}
