package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/user/salesagent/internal/chat"
	"github.com/user/salesagent/internal/config"
	"github.com/user/salesagent/internal/instructions"
	"github.com/user/salesagent/internal/salesdata"
	"github.com/user/salesagent/internal/session"
	"github.com/user/salesagent/internal/toolset"
	"github.com/user/salesagent/internal/turn"
	"github.com/user/salesagent/pkg/agents"
)

func init() {
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive agent session",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	ctx := context.Background()

	client := agents.New(&agents.Config{
		Endpoint: cfg.Service.Endpoint,
		APIKey:   cfg.Service.APIKey,
	})

	engine := salesdata.New(cfg.Data.DatabasePath)

	registry := toolset.NewRegistry()
	registry.Register(salesdata.NewFetchTool(engine))

	builder := toolset.NewBuilder(client, registry,
		cfg.Data.CorpusFiles, fontsZipFor(cfg), cfg.Data.VectorStoreName)

	renderer := selectRenderer(cfg)

	mgr := session.NewManager(client, builder, renderer, engine, session.Options{
		Deployment:  cfg.Service.Deployment,
		AgentName:   cfg.Service.AgentName,
		Temperature: cfg.Service.Temperature,
	})

	agent, thread := mgr.Initialize(ctx)
	if agent == nil || thread == nil {
		color.New(color.BgRed, color.FgWhite).Fprint(os.Stdout,
			"Initialization failed. Ensure an instructions template and model deployment are configured.")
		fmt.Println()
		fmt.Println("Exiting...")
		return nil
	}

	driver, err := turn.New(client, registry, os.Stdout,
		cfg.Service.Deployment, agent.ID, thread.ID, agents.RunOptions{
			MaxCompletionTokens: cfg.Service.MaxCompletionTokens,
			MaxPromptTokens:     cfg.Service.MaxPromptTokens,
			Temperature:         cfg.Service.Temperature,
			TopP:                cfg.Service.TopP,
		})
	if err != nil {
		return fmt.Errorf("create turn driver: %w", err)
	}

	loop := chat.New(os.Stdin, os.Stdout, driver)
	outcome := loop.Run(ctx)

	switch outcome {
	case chat.OutcomeSave:
		if err := mgr.Save(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
		fmt.Println("The agent has not been deleted, so you can continue experimenting with it.")
		fmt.Printf("Agent id: %s\n", agent.ID)
	default:
		if err := mgr.Cleanup(ctx, agent, thread); err != nil {
			fmt.Fprintf(os.Stderr, "Cleanup finished with errors: %v\n", err)
		} else {
			fmt.Println("The agent resources have been cleaned up.")
		}
	}
	return nil
}

// selectRenderer resolves the configured template id. A missing selection
// returns nil so initialization aborts before touching the service.
func selectRenderer(cfg *config.Config) *instructions.Renderer {
	renderer, err := instructions.NewRenderer(instructions.TemplateID(cfg.Instructions.Template))
	if err != nil {
		slog.Warn("no usable instruction template", "error", err)
		return nil
	}
	return renderer
}

// fontsZipFor returns the fonts bundle path only for the multilingual
// template; other templates attach no asset to the code interpreter.
func fontsZipFor(cfg *config.Config) string {
	if instructions.TemplateID(cfg.Instructions.Template) == instructions.TemplateCodeInterpreterMultilingual {
		return cfg.Data.FontsZip
	}
	return ""
}
