// Command chat is a terminal client for the campuschat signaling server.
// It logs in over the HTTP API, joins the presence registry and opens
// direct data channels to other online users.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"campuschat/internal/core/domain"
	"campuschat/internal/peer"
	"campuschat/pkg/config"
	"campuschat/pkg/logger"
)

type tokenResponse struct {
	Token string `json:"token"`
}

type onlineResponse struct {
	OnlineUsers []domain.IdentityRecord `json:"onlineUsers"`
}

func main() {
	serverAddr := flag.String("server", "http://localhost:3001", "signaling server base URL")
	username := flag.String("user", "", "username")
	password := flag.String("pass", "", "password")
	email := flag.String("email", "", "email, required with -register")
	register := flag.Bool("register", false, "create the account before logging in")
	flag.Parse()

	if *username == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: chat -user <name> -pass <password> [-register -email <email>] [-server <url>]")
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	zapLogger := logger.New("warn", "console")
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	if *register {
		if err := registerAccount(*serverAddr, *username, *email, *password); err != nil {
			fmt.Fprintf(os.Stderr, "registration failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("account created")
	}

	token, err := login(*serverAddr, *username, *password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
		os.Exit(1)
	}

	wsURL := "ws" + strings.TrimPrefix(*serverAddr, "http") + cfg.Signal.Path

	client := peer.NewClient(peer.Config{
		ServerURL:          wsURL,
		Token:              token,
		ICEServers:         cfg.ICEServerURLs(),
		ReconnectDelay:     cfg.Chat.ReconnectDelay.Std(),
		NegotiationTimeout: cfg.Chat.NegotiationTimeout.Std(),
	}, peer.Callbacks{
		OnMessage: func(from domain.Identity, text string, at time.Time) {
			fmt.Printf("[%s] %s: %s\n", at.Local().Format("15:04:05"), from, text)
		},
		OnTyping: func(from domain.Identity, isTyping bool) {
			if isTyping {
				fmt.Printf("%s is typing...\n", from)
			}
		},
		OnPeerJoined: func(p domain.Identity) {
			fmt.Printf("* %s is now online\n", p)
		},
		OnPeerLeft: func(p domain.Identity) {
			fmt.Printf("* %s went offline\n", p)
		},
		OnSessionReady: func(p domain.Identity) {
			fmt.Printf("* chat with %s is ready\n", p)
		},
		OnSessionFailed: func(p domain.Identity) {
			fmt.Printf("* could not establish a connection to %s\n", p)
		},
	}, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = client.Connect(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect failed: %v\n", err)
		os.Exit(1)
	}
	defer client.Disconnect()

	fmt.Println("connected; commands: /who, /call <id>, /quit; anything else is sent to the current peer")
	repl(client, *serverAddr, token, cfg)
}

func repl(client *peer.Client, serverAddr, token string, cfg *config.Config) {
	var current domain.Identity
	typing := peer.NewTypingNotifier(cfg.Chat.TypingIdle.Std(), func(isTyping bool) {
		if current != "" {
			client.SendTypingIndicator(current, isTyping)
		}
	})
	defer typing.Stop()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit":
			return
		case line == "/who":
			records, err := fetchOnline(serverAddr, token)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			for _, r := range records {
				fmt.Printf("  %s (%s)\n", r.Name, r.ID)
			}
		case strings.HasPrefix(line, "/call "):
			target := domain.Identity(strings.TrimSpace(strings.TrimPrefix(line, "/call ")))
			if err := client.InitiateCall(target); err != nil {
				fmt.Printf("call failed: %v\n", err)
				continue
			}
			current = target
			fmt.Printf("calling %s...\n", target)
		default:
			if current == "" {
				fmt.Println("no active peer; use /call <id> first")
				continue
			}
			typing.Keystroke()
			client.SendMessage(current, line)
		}
	}
}

func registerAccount(serverAddr, username, email, password string) error {
	body, _ := json.Marshal(map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	})
	resp, err := http.Post(serverAddr+"/api/auth/register", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}

func login(serverAddr, username, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	resp, err := http.Post(serverAddr+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", err
	}
	if tr.Token == "" {
		return "", fmt.Errorf("empty token in response")
	}
	return tr.Token, nil
}

func fetchOnline(serverAddr, token string) ([]domain.IdentityRecord, error) {
	req, err := http.NewRequest(http.MethodGet, serverAddr+"/api/users/online", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var or onlineResponse
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return nil, err
	}
	return or.OnlineUsers, nil
}
