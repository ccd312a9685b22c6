package gateway

import (
	"context"
	"time"

	"github.com/haasonsaas/nexus/internal/channels/slack"
	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/convcore"
)

// conversationResolvers builds the lazy provider/tool lookups
// internal/convcore needs, bridging to the gateway's runtime which is
// itself created lazily on first use (see ensureRuntime). Both closures
// ignore the instance name today since the gateway runs a single shared
// runtime; per-instance bundles are a configured identity
// (config.ConversationInstanceConfig.Bundle) without a per-bundle runtime
// yet, so every instance currently resolves to the same provider and tool
// set.
func (s *Server) conversationResolvers() (convcore.ProviderResolver, convcore.ToolSetResolver) {
	resolveProvider := func(instance string) (convcore.LLMProvider, error) {
		runtime, err := s.ensureRuntime(context.Background())
		if err != nil {
			return nil, err
		}
		return runtime.Provider(), nil
	}
	resolveTools := func(instance string) ([]convcore.Tool, convcore.ToolExecutor) {
		runtime, err := s.ensureRuntime(context.Background())
		if err != nil {
			return nil, nil
		}
		return runtime.ToolSet()
	}
	return resolveProvider, resolveTools
}

// slackConversationConfig translates the conversation section of the
// gateway config into the shape internal/channels/slack's adapter needs to
// construct its conversationRouter, per spec §6's configuration surface.
func (s *Server) slackConversationConfig(cc *config.ConversationConfig) *slack.ConversationConfig {
	instances := make([]convcore.InstanceConfig, 0, len(cc.Instances))
	for _, inst := range cc.Instances {
		instances = append(instances, convcore.InstanceConfig{
			Name:         inst.Name,
			Bundle:       inst.Bundle,
			WorkingDir:   inst.WorkingDir,
			PersonaName:  inst.Persona.Name,
			PersonaEmoji: inst.Persona.Emoji,
		})
	}

	forceRespond := make(map[string]struct{}, len(cc.ForceRespondTools))
	for _, name := range cc.ForceRespondTools {
		forceRespond[name] = struct{}{}
	}

	orchConfig := &convcore.OrchestratorConfig{
		MaxIterations:     cc.MaxIterations,
		ForceRespondTools: forceRespond,
	}

	resolveProvider, resolveTools := s.conversationResolvers()

	return &slack.ConversationConfig{
		Instances:           instances,
		DefaultInstance:     cc.Defaults.Instance,
		ResolveProvider:     resolveProvider,
		ResolveTools:        resolveTools,
		OrchestratorConfig:  orchConfig,
		TranscriptDir:       s.config.Session.Memory.Directory,
		LockTimeout:         30 * time.Second,
		ApprovalTimeout:     time.Duration(cc.ApprovalDefaultTimeoutSeconds) * time.Second,
		ThreadOwnerCapacity: cc.ThreadOwnerCapacity,
		SummonCapacity:      cc.ThreadOwnerCapacity,
		Logger:              s.logger,
	}
}
