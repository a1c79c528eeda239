package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pedrovictor26/ofix-assistant/internal/config"
)

type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var newAPIClient = func() (*apiClient, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		token:      cfg.Server.APIToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *apiClient) get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *apiClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *apiClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable — is ofix-assistant running? (%w)", err)
	}
	return resp, nil
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the assistant server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/health")
		if err != nil {
			printError("Server not reachable")
			return err
		}

		var health struct {
			Status string `json:"status"`
		}
		if err := decodeJSON(resp, &health); err != nil {
			return err
		}

		printSuccess("Server is running")
		printStatus("Address", "%s", client.baseURL)
		printStatus("Health", "%s", health.Status)
		return nil
	},
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Talk to the assistant",
	Long: `Talk to the assistant.

With a message argument a single exchange is performed; without one an
interactive session starts (Ctrl-D to exit). Use --user to continue an
existing conversation, otherwise a fresh conversation id is generated.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		if userID == "" {
			userID = "cli-" + uuid.NewString()
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if len(args) > 0 {
			return sendChat(cmd.Context(), client, strings.Join(args, " "), userID)
		}

		fmt.Fprintln(os.Stderr, colorize(colorCyan, "Interactive chat (Ctrl-D to exit)"))
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Fprint(os.Stderr, colorize(colorBold, "> "))
			if !scanner.Scan() {
				fmt.Fprintln(os.Stderr)
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if err := sendChat(cmd.Context(), client, line, userID); err != nil {
				printError("%v", err)
			}
		}
	},
}

func sendChat(ctx context.Context, client *apiClient, message, userID string) error {
	resp, err := client.post(ctx, "/api/assistant/message", map[string]string{
		"message": message,
		"userId":  userID,
	})
	if err != nil {
		return err
	}

	var result struct {
		Response    string `json:"response"`
		ProcessedBy string `json:"processedBy"`
		Done        bool   `json:"done"`
		ReferenceID string `json:"referenceId"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}

	fmt.Println(result.Response)
	if result.ReferenceID != "" {
		printStatus("Ordem de serviço", "%s", result.ReferenceID)
	}
	return nil
}

func init() {
	chatCmd.Flags().String("user", "", "conversation subject id")
}
