// Package service renders the daemon descriptors that formulae with
// a service block ship.
package service

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"howett.net/plist"

	"github.com/the-maldridge/nbrew/pkg/types"
)

// Label is the launchd label of a formula's service.
func Label(name string) string {
	return "nbrew.mxcl." + name
}

// FileName returns the name the descriptor is written under inside a
// keg.
func FileName(f *types.Formula, p types.Platform) string {
	if p.IsMacOS() {
		return Label(f.Name) + ".plist"
	}
	return "nbrew." + f.Name + ".service"
}

// Render produces the descriptor appropriate for the platform.
func Render(f *types.Formula, prefix string, p types.Platform) ([]byte, error) {
	if f.Service == nil {
		return nil, errors.Errorf("%s has no service", f.Name)
	}
	if p.IsMacOS() {
		return Launchd(f, prefix)
	}
	return Systemd(f, prefix), nil
}

type launchdJob struct {
	Label                string            `plist:"Label"`
	ProgramArguments     []string          `plist:"ProgramArguments"`
	RunAtLoad            bool              `plist:"RunAtLoad,omitempty"`
	KeepAlive            bool              `plist:"KeepAlive,omitempty"`
	WorkingDirectory     string            `plist:"WorkingDirectory,omitempty"`
	StandardOutPath      string            `plist:"StandardOutPath,omitempty"`
	StandardErrorPath    string            `plist:"StandardErrorPath,omitempty"`
	EnvironmentVariables map[string]string `plist:"EnvironmentVariables,omitempty"`
}

// Launchd renders an XML launchd job.
func Launchd(f *types.Formula, prefix string) ([]byte, error) {
	s := f.Service
	x := expander(prefix)
	job := launchdJob{
		Label:             Label(f.Name),
		ProgramArguments:  expandAll(x, s.Run),
		RunAtLoad:         s.RunAtLoad,
		KeepAlive:         s.KeepAlive,
		WorkingDirectory:  x.Replace(s.WorkingDir),
		StandardOutPath:   x.Replace(s.LogPath),
		StandardErrorPath: x.Replace(s.ErrorLogPath),
	}
	if len(s.Environment) > 0 {
		job.EnvironmentVariables = make(map[string]string, len(s.Environment))
		for k, v := range s.Environment {
			job.EnvironmentVariables[k] = x.Replace(v)
		}
	}
	return plist.MarshalIndent(job, plist.XMLFormat, "\t")
}

// Systemd renders a systemd user unit.
func Systemd(f *types.Formula, prefix string) []byte {
	s := f.Service
	x := expander(prefix)

	var b bytes.Buffer
	fmt.Fprintf(&b, "[Unit]\nDescription=nbrew generated unit for %s\n\n[Service]\nType=simple\n", f.Name)
	fmt.Fprintf(&b, "ExecStart=%s\n", strings.Join(quoteAll(expandAll(x, s.Run)), " "))
	if s.KeepAlive {
		b.WriteString("Restart=always\n")
	}
	if s.WorkingDir != "" {
		fmt.Fprintf(&b, "WorkingDirectory=%s\n", x.Replace(s.WorkingDir))
	}
	if s.LogPath != "" {
		fmt.Fprintf(&b, "StandardOutput=append:%s\n", x.Replace(s.LogPath))
	}
	if s.ErrorLogPath != "" {
		fmt.Fprintf(&b, "StandardError=append:%s\n", x.Replace(s.ErrorLogPath))
	}
	keys := make([]string, 0, len(s.Environment))
	for k := range s.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "Environment=\"%s=%s\"\n", k, x.Replace(s.Environment[k]))
	}
	if s.RunAtLoad {
		b.WriteString("\n[Install]\nWantedBy=default.target\n")
	}
	return b.Bytes()
}

// expander handles the prefix relative variables a service may use.
// The full set is only known to the builder.
func expander(prefix string) *strings.Replacer {
	return strings.NewReplacer(
		"${prefix}", prefix,
		"${bin}", prefix+"/bin",
		"${sbin}", prefix+"/sbin",
		"${etc}", prefix+"/etc",
		"${var}", prefix+"/var",
		"${share}", prefix+"/share",
	)
}

func expandAll(x *strings.Replacer, in []string) []string {
	out := make([]string, len(in))
	for i := range in {
		out[i] = x.Replace(in[i])
	}
	return out
}

func quoteAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		if strings.ContainsAny(s, " \t\"") {
			s = `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
		}
		out[i] = s
	}
	return out
}
