package script

import (
	"fmt"
	"strings"

	"github.com/arlert/devmon/internal/logger"
)

// Options carries the execution options of one resolved command. The options
// of the last command in a chain are authoritative for the whole run.
type Options struct {
	Watch   bool          `json:"watch" mapstructure:"watch"`
	WorkDir string        `json:"workdir" mapstructure:"workdir"`
	Env     []string      `json:"env" mapstructure:"env"`
	Log     logger.Config `json:"log" mapstructure:"log"`
}

// Command is one resolved step of a script chain: the argv to spawn plus
// its options. The last command of a chain is the one that gets daemonized.
type Command struct {
	Args    []string
	Options Options
}

// Line returns the command as a single display string for logging.
func (c Command) Line() string { return strings.Join(c.Args, " ") }

// Def is one script definition as it appears in configuration.
type Def struct {
	Cmd     string   `json:"cmd" mapstructure:"cmd"`
	Pre     []string `json:"pre" mapstructure:"pre"`
	Watch   bool     `json:"watch" mapstructure:"watch"`
	WorkDir string   `json:"workdir" mapstructure:"workdir"`
	Env     []string `json:"env" mapstructure:"env"`
}

// Resolver builds command chains from named script definitions. Resolve
// produces a fresh chain on every call; reloads re-resolve rather than
// reusing a cached chain.
type Resolver struct {
	defs map[string]Def
	log  logger.Config
}

func NewResolver(defs map[string]Def, log logger.Config) *Resolver {
	return &Resolver{defs: defs, log: log}
}

// Names returns the configured script names.
func (r *Resolver) Names() []string {
	names := make([]string, 0, len(r.defs))
	for n := range r.defs {
		names = append(names, n)
	}
	return names
}

// Resolve turns a script name into its ordered command chain. All `pre`
// commands come first and never watch; the main command carries the
// script's options and is last.
func (r *Resolver) Resolve(name string) ([]Command, error) {
	def, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("script %q is not configured", name)
	}
	if strings.TrimSpace(def.Cmd) == "" {
		return nil, fmt.Errorf("script %q has no command", name)
	}
	opts := Options{Watch: def.Watch, WorkDir: def.WorkDir, Env: def.Env, Log: r.log}
	chain := make([]Command, 0, len(def.Pre)+1)
	for _, pre := range def.Pre {
		if strings.TrimSpace(pre) == "" {
			continue
		}
		chain = append(chain, Command{Args: SplitCommand(pre), Options: opts})
	}
	chain = append(chain, Command{Args: SplitCommand(def.Cmd), Options: opts})
	return chain, nil
}

// SplitCommand turns a command string into argv. It avoids invoking a shell
// when not necessary, and it respects an explicit shell invocation already
// present in the command string (e.g. "sh -c 'echo hi'"), avoiding
// double-wrapping with another shell.
func SplitCommand(cmdStr string) []string {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		return []string{"/bin/true"}
	}
	// If the command already explicitly uses a shell, honor it without
	// adding another layer.
	if after, ok := parseExplicitShell(cmdStr); ok {
		return []string{"/bin/sh", "-c", after}
	}
	// When metacharacters are present, the command needs a shell.
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		return []string{"/bin/sh", "-c", cmdStr}
	}
	return strings.Fields(cmdStr)
}

// parseExplicitShell detects patterns like "sh -c <ARG>" or "/bin/sh -c <ARG>"
// at the beginning of cmdStr. It preserves the substring after "-c " verbatim
// to avoid breaking quoting, stripping a single pair of wrapping quotes.
func parseExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return after, true
		}
	}
	return "", false
}
