package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/loftlabs/loft/internal/assist"
	"github.com/loftlabs/loft/internal/chat"
	"github.com/loftlabs/loft/internal/config"
	"github.com/loftlabs/loft/internal/controller"
	"github.com/loftlabs/loft/internal/errors"
	"github.com/loftlabs/loft/internal/export"
	"github.com/loftlabs/loft/internal/genai"
	"github.com/loftlabs/loft/internal/web"
	"github.com/loftlabs/loft/internal/workspace"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(ws *workspace.Workspace, cfg *config.Config, baseDir string) *cli.App {
	app := &cli.App{
		Name:    "loft",
		Usage:   "Project-aware AI chat workspace",
		Version: Version,
		Commands: []*cli.Command{
			chatCmd(ws),
			projectCmd(ws, cfg),
			sendCmd(ws, cfg),
			searchCmd(ws),
			exportCmd(ws, cfg, baseDir),
			importCmd(ws, cfg, baseDir),
			webCmd(ws, cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// chatCmd creates the chat command group.
func chatCmd(ws *workspace.Workspace) *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Manage chats",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a new chat",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "project", Aliases: []string{"p"}, Usage: "Project ID to create the chat in"},
				},
				Action: func(c *cli.Context) error {
					id, err := ws.CreateChat(c.String("project"))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]string{"chat_id": id})
				},
			},
			{
				Name:  "list",
				Usage: "List chats, most recent first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "project", Aliases: []string{"p"}, Usage: "Only list chats in this project"},
				},
				Action: func(c *cli.Context) error {
					chats := ws.Chats()
					if pid := c.String("project"); pid != "" {
						chats = ws.ProjectChats(pid)
					}
					return outputJSON(chatSummaries(chats))
				},
			},
			{
				Name:      "get",
				Usage:     "Show a chat with its full history",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					chat, err := ws.Chat(c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(chat)
				},
			},
			{
				Name:      "rename",
				Usage:     "Rename a chat",
				ArgsUsage: "<id> <name>",
				Action: func(c *cli.Context) error {
					if c.NArg() < 2 {
						return outputError(errors.NewInvalidRequest("usage: loft chat rename <id> <name>"))
					}
					if err := ws.RenameChat(c.Args().Get(0), c.Args().Get(1)); err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]bool{"renamed": true})
				},
			},
			{
				Name:      "move",
				Usage:     "Move a chat into a project (empty project = uncategorized)",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "project", Aliases: []string{"p"}, Usage: "Destination project ID"},
				},
				Action: func(c *cli.Context) error {
					if err := ws.MoveChat(c.Args().First(), c.String("project")); err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]bool{"moved": true})
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a chat",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					if err := ws.DeleteChat(c.Args().First()); err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]bool{"deleted": true})
				},
			},
		},
	}
}

// projectCmd creates the project command group.
func projectCmd(ws *workspace.Workspace, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "project",
		Usage: "Manage projects and their AI workflows",
		Subcommands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a new project",
				ArgsUsage: "<name>",
				Action: func(c *cli.Context) error {
					id, err := ws.CreateProject(c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]string{"project_id": id})
				},
			},
			{
				Name:  "list",
				Usage: "List projects",
				Action: func(c *cli.Context) error {
					return outputJSON(ws.Projects())
				},
			},
			{
				Name:      "get",
				Usage:     "Show a project with its annotations",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					p, err := ws.Project(c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(p)
				},
			},
			{
				Name:      "rename",
				Usage:     "Rename a project",
				ArgsUsage: "<id> <name>",
				Action: func(c *cli.Context) error {
					if c.NArg() < 2 {
						return outputError(errors.NewInvalidRequest("usage: loft project rename <id> <name>"))
					}
					if err := ws.RenameProject(c.Args().Get(0), c.Args().Get(1)); err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]bool{"renamed": true})
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a project and all chats in it",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					if err := ws.DeleteProject(c.Args().First()); err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]bool{"deleted": true})
				},
			},
			{
				Name:      "instructions",
				Usage:     "Set project instructions (reads text from stdin or argument)",
				ArgsUsage: "<id> [text]",
				Action: func(c *cli.Context) error {
					text := c.Args().Get(1)
					if text == "" && stdinHasData() {
						t, err := readStdin()
						if err != nil {
							return outputError(errors.NewInternal(err))
						}
						text = t
					}
					if err := ws.SetProjectInstructions(c.Args().First(), text); err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]bool{"updated": true})
				},
			},
			{
				Name:      "brainstorm",
				Usage:     "Brainstorm features for a project from an idea",
				ArgsUsage: "<id> <idea>",
				Action: func(c *cli.Context) error {
					if c.NArg() < 2 {
						return outputError(errors.NewInvalidRequest("usage: loft project brainstorm <id> <idea>"))
					}
					asst, err := newAssistant(ws, cfg)
					if err != nil {
						return outputError(err)
					}
					features, err := asst.BrainstormFeatures(c.Context, c.Args().Get(0), c.Args().Get(1))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(features)
				},
			},
			{
				Name:      "component",
				Usage:     "Generate a UI component for a project",
				ArgsUsage: "<id> <description>",
				Action: func(c *cli.Context) error {
					if c.NArg() < 2 {
						return outputError(errors.NewInvalidRequest("usage: loft project component <id> <description>"))
					}
					asst, err := newAssistant(ws, cfg)
					if err != nil {
						return outputError(err)
					}
					comp, err := asst.GenerateComponent(c.Context, c.Args().Get(0), c.Args().Get(1))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(comp)
				},
			},
			{
				Name:      "analyze",
				Usage:     "Generate a tech-stack and competitor analysis for a project",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					asst, err := newAssistant(ws, cfg)
					if err != nil {
						return outputError(err)
					}
					analysis, err := asst.AnalyzeProject(c.Context, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(analysis)
				},
			},
		},
	}
}

// sendCmd creates the send command.
func sendCmd(ws *workspace.Workspace, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Send a message to a chat and print the reply (message from argument or stdin)",
		ArgsUsage: "[message]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "chat", Aliases: []string{"c"}, Usage: "Target chat ID (default: active chat)"},
			&cli.StringFlag{Name: "project", Aliases: []string{"p"}, Usage: "Start a new chat in this project instead"},
			&cli.StringFlag{Name: "attach", Aliases: []string{"a"}, Usage: "Path of a file to attach"},
		},
		Action: func(c *cli.Context) error {
			message := strings.Join(c.Args().Slice(), " ")
			if message == "" && stdinHasData() {
				m, err := readStdin()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				message = m
			}

			var attachments []controller.Attachment
			if path := c.String("attach"); path != "" {
				att, err := readAttachment(path)
				if err != nil {
					return outputError(err)
				}
				attachments = append(attachments, att)
			}

			ctrl, err := newController(ws, cfg)
			if err != nil {
				return outputError(err)
			}

			chatID := c.String("chat")
			if pid := c.String("project"); pid != "" {
				id, err := ctrl.SendMessageInNewProjectChat(c.Context, pid, message, attachments)
				if err != nil {
					return outputError(err)
				}
				chatID = id
			} else {
				if chatID == "" {
					chatID = ws.ActiveChatID()
				}
				if chatID == "" {
					return outputError(errors.NewInvalidRequest("no chat selected; pass --chat or --project"))
				}
				if err := ctrl.SendMessage(c.Context, chatID, message, attachments); err != nil {
					return outputError(err)
				}
			}

			target, err := ws.Chat(chatID)
			if err != nil {
				return outputError(err)
			}
			reply := ""
			if n := len(target.History); n > 0 {
				reply = target.History[n-1].Text()
			}
			return outputJSON(map[string]string{"chat_id": chatID, "reply": reply})
		},
	}
}

// searchCmd creates the search command.
func searchCmd(ws *workspace.Workspace) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search chats by name and message content",
		ArgsUsage: "<query>",
		Action: func(c *cli.Context) error {
			query := strings.Join(c.Args().Slice(), " ")
			if query == "" {
				return outputError(errors.NewInvalidRequest("usage: loft search <query>"))
			}
			return outputJSON(chatSummaries(ws.SearchChats(query)))
		},
	}
}

// exportCmd creates the export command.
func exportCmd(ws *workspace.Workspace, cfg *config.Config, baseDir string) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export chats to a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.loft/exports/<project>-<timestamp>.jsonl)"},
			&cli.StringFlag{Name: "project", Usage: "Only export chats in this project"},
		},
		Action: func(c *cli.Context) error {
			output, err := export.Export(ws, cfg, baseDir, export.Input{
				Path:      c.String("path"),
				ProjectID: c.String("project"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// importCmd creates the import command.
func importCmd(ws *workspace.Workspace, cfg *config.Config, baseDir string) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import chats from a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Import file path"},
		},
		Action: func(c *cli.Context) error {
			output, err := export.Import(ws, cfg, baseDir, export.ImportInput{
				Path: c.String("path"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// webCmd creates the web command.
func webCmd(ws *workspace.Workspace, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "web",
		Usage: "Serve the browser UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Bind address"},
			&cli.IntFlag{Name: "port", Value: 8793, Usage: "Listen port"},
		},
		Action: func(c *cli.Context) error {
			srv := web.NewServer(ws, cfg, Version, c.String("bind"), c.Int("port"))
			return web.Run(srv)
		},
	}
}

// Helper functions

// chatSummary is the compact chat listing shape for CLI output.
type chatSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ProjectID string `json:"project_id,omitempty"`
	Turns     int    `json:"turns"`
	UpdatedAt int64  `json:"updated_at"`
}

func chatSummaries(chats []chat.Chat) []chatSummary {
	out := make([]chatSummary, 0, len(chats))
	for _, c := range chats {
		out = append(out, chatSummary{
			ID:        c.ID,
			Name:      c.Name,
			ProjectID: c.ProjectID,
			Turns:     len(c.History),
			UpdatedAt: c.UpdatedAt,
		})
	}
	return out
}

// newController builds the send controller over the live completion client.
func newController(ws *workspace.Workspace, cfg *config.Config) (*controller.Controller, error) {
	client, err := genai.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return controller.New(ws, client, cfg), nil
}

// newAssistant builds the project assistant over the live completion client.
func newAssistant(ws *workspace.Workspace, cfg *config.Config) (*assist.Assistant, error) {
	client, err := genai.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return assist.New(ws, client), nil
}

// readAttachment loads a file as a message attachment, sniffing its MIME type.
func readAttachment(path string) (controller.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return controller.Attachment{}, errors.NewInvalidRequest(fmt.Sprintf("cannot read attachment: %v", err))
	}
	return controller.Attachment{
		MIMEType: http.DetectContentType(data),
		Data:     data,
	}, nil
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if loftErr, ok := err.(*errors.LoftError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", loftErr.Code, loftErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
