package types

// A Formula is a single declarative recipe describing how to fetch,
// build, verify and install one piece of software.  Formulae are
// loaded from YAML files in a tap.
type Formula struct {
	Name     string `yaml:"name"`
	Desc     string `yaml:"desc"`
	Homepage string `yaml:"homepage"`
	License  string `yaml:"license,omitempty"`

	// Version overrides the version that would otherwise be parsed
	// out of the source URL.
	Version  string `yaml:"version,omitempty"`
	Revision int    `yaml:"revision,omitempty"`

	Source `yaml:",inline"`
	Head   *Source `yaml:"head,omitempty"`

	KegOnly       string   `yaml:"keg_only,omitempty"`
	ConflictsWith []string `yaml:"conflicts_with,omitempty"`

	DependsOn     []Dependency `yaml:"depends_on,omitempty"`
	UsesFromMacOS []Dependency `yaml:"uses_from_macos,omitempty"`
	Resources     []Resource   `yaml:"resources,omitempty"`
	Bottle        *Bottle      `yaml:"bottle,omitempty"`

	Install     []Step     `yaml:"install,omitempty"`
	PostInstall []Step     `yaml:"post_install,omitempty"`
	Test        []TestStep `yaml:"test,omitempty"`
	Service     *Service   `yaml:"service,omitempty"`
	Caveats     string     `yaml:"caveats,omitempty"`

	Deprecated *Lifecycle `yaml:"deprecated,omitempty"`
	Disabled   *Lifecycle `yaml:"disabled,omitempty"`
}

// Source is where the code for a formula or resource comes from.
// Either URL+SHA256 or Git must be set.
type Source struct {
	URL     string   `yaml:"url,omitempty"`
	Mirrors []string `yaml:"mirrors,omitempty"`
	SHA256  string   `yaml:"sha256,omitempty"`
	Git     *GitRef  `yaml:"git,omitempty"`
}

// IsGit reports whether the source is a VCS checkout.
func (s Source) IsGit() bool {
	return s.Git != nil
}

// A GitRef points at a commit in a git repository.  Revision wins
// over Tag which wins over Branch.
type GitRef struct {
	URL      string `yaml:"url"`
	Tag      string `yaml:"tag,omitempty"`
	Revision string `yaml:"revision,omitempty"`
	Branch   string `yaml:"branch,omitempty"`
}

// Dependency kinds.
const (
	DepBuild       = "build"
	DepRun         = "run"
	DepTest        = "test"
	DepOptional    = "optional"
	DepRecommended = "recommended"
)

// A Dependency is a typed edge to another formula.
type Dependency struct {
	Name string `yaml:"name"`
	// Type is one of the Dep* kinds, empty means run.
	Type string `yaml:"type,omitempty"`
	// On restricts the edge to "macos", "linux" or a macOS
	// release name.
	On   []string `yaml:"on,omitempty"`
	Arch string   `yaml:"arch,omitempty"`
}

// Kind returns the dependency type with the default applied.
func (d Dependency) Kind() string {
	if d.Type == "" {
		return DepRun
	}
	return d.Type
}

// A Resource is an auxiliary download staged during the build.
type Resource struct {
	Name   string `yaml:"name"`
	Source `yaml:",inline"`
}

// Bottle is the table of precompiled artifacts for a formula.
type Bottle struct {
	RootURL string `yaml:"root_url,omitempty"`
	Cellar  string `yaml:"cellar,omitempty"`
	Rebuild int    `yaml:"rebuild,omitempty"`
	// Files maps a bottle tag to the sha256 of the bottle.  The
	// special tag "all" matches any platform.
	Files map[string]string `yaml:"files"`
}

// A Step is a single subprocess invocation.
type Step struct {
	Run []string          `yaml:"run"`
	Dir string            `yaml:"dir,omitempty"`
	Env map[string]string `yaml:"env,omitempty"`
	On  []string          `yaml:"on,omitempty"`
}

// A TestStep runs a command and asserts on its result.
type TestStep struct {
	Run      []string `yaml:"run"`
	Input    string   `yaml:"input,omitempty"`
	Expect   string   `yaml:"expect,omitempty"`
	ExitCode int      `yaml:"exit_code,omitempty"`
}

// Service describes a daemon that the formula provides.
type Service struct {
	Run          []string          `yaml:"run"`
	KeepAlive    bool              `yaml:"keep_alive,omitempty"`
	RunAtLoad    bool              `yaml:"run_at_load,omitempty"`
	WorkingDir   string            `yaml:"working_dir,omitempty"`
	LogPath      string            `yaml:"log_path,omitempty"`
	ErrorLogPath string            `yaml:"error_log_path,omitempty"`
	Environment  map[string]string `yaml:"environment,omitempty"`
}

// Lifecycle marks a formula as deprecated or disabled.
type Lifecycle struct {
	Date    string `yaml:"date,omitempty"`
	Because string `yaml:"because"`
}
