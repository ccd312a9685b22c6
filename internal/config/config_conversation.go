package config

// ConversationConfig configures the conversational execution core
// (internal/convcore): named instances, routing defaults, and the
// orchestrator's iteration/approval/throttle knobs, per spec §6's
// enumerated configuration surface.
type ConversationConfig struct {
	Instances           []ConversationInstanceConfig `yaml:"instances"`
	Defaults            ConversationDefaultsConfig   `yaml:"defaults"`
	Slack               ConversationSlackConfig      `yaml:"slack"`
	ForceRespondTools   []string                     `yaml:"force_respond_tools"`
	MaxIterations       int                          `yaml:"max_iterations"`
	ApprovalDefaultTimeoutSeconds int                `yaml:"approval_default_timeout"`
	StatusThrottleSeconds int                        `yaml:"status_throttle_seconds"`
	ThreadOwnerCapacity int                          `yaml:"thread_owner_capacity"`
	FileSizeCapBytes    int64                        `yaml:"file_size_cap"`
}

// ConversationInstanceConfig describes one named AI instance.
type ConversationInstanceConfig struct {
	Name       string                     `yaml:"name"`
	Bundle     string                     `yaml:"bundle"`
	WorkingDir string                     `yaml:"working_dir"`
	Persona    ConversationPersonaConfig  `yaml:"persona"`
}

// ConversationPersonaConfig names the display identity used when posting an
// instance's final response under its own username/emoji, per §6's
// two-post pattern.
type ConversationPersonaConfig struct {
	Name  string `yaml:"name"`
	Emoji string `yaml:"emoji"`
}

// ConversationDefaultsConfig names the instance used absent an explicit
// prefix or topic directive.
type ConversationDefaultsConfig struct {
	Instance string `yaml:"instance"`
}

// ConversationSlackConfig carries the Slack app/bot tokens the core's
// transport seam authenticates with.
type ConversationSlackConfig struct {
	AppToken string `yaml:"app_token"`
	BotToken string `yaml:"bot_token"`
}

func applyConversationDefaults(cfg *ConversationConfig) {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}
	if cfg.ApprovalDefaultTimeoutSeconds <= 0 {
		cfg.ApprovalDefaultTimeoutSeconds = 300
	}
	if cfg.StatusThrottleSeconds <= 0 {
		cfg.StatusThrottleSeconds = 2
	}
	if cfg.ThreadOwnerCapacity <= 0 {
		cfg.ThreadOwnerCapacity = 10000
	}
	if cfg.FileSizeCapBytes <= 0 {
		cfg.FileSizeCapBytes = 25 * 1024 * 1024
	}
	if len(cfg.ForceRespondTools) == 0 {
		cfg.ForceRespondTools = []string{"dispatch_worker"}
	}
}
