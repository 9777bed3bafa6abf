package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"smart-mail-assistant-go/internal/config"
	"smart-mail-assistant-go/internal/credential"
	"smart-mail-assistant-go/internal/workspace"
)

func main() {
	llmKey := flag.Bool("llm-key", false, "store an LLM API key in the system keyring instead of running the OAuth flow")
	provider := flag.String("provider", "", "LLM provider the key belongs to (defaults to LLM_PROVIDER)")
	redirect := flag.String("redirect", "http://localhost:8080/callback", "OAuth redirect URL registered for the client")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	if *llmKey {
		name := *provider
		if name == "" {
			name = cfg.LLM.Provider
		}
		if err := storeLLMKey(name); err != nil {
			logrus.Fatalf("Failed to store LLM key: %v", err)
		}
		fmt.Printf("Stored %s API key in the keyring. Set LLM_USE_KEYRING=true to use it.\n", name)
		return
	}

	if cfg.Gmail.ClientID == "" || cfg.Gmail.ClientSecret == "" {
		logrus.Fatal("Please set GMAIL_CLIENT_ID and GMAIL_CLIENT_SECRET environment variables")
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.Gmail.ClientID,
		ClientSecret: cfg.Gmail.ClientSecret,
		Scopes:       workspace.AllOAuthScopes(),
		Endpoint:     google.Endpoint,
		RedirectURL:  *redirect,
	}

	authURL := oauthCfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Printf("Go to the following link in your browser: %v\n", authURL)
	fmt.Println("\nAfter authorization, you'll be redirected to a URL. Copy the 'code' parameter from that URL.")

	fmt.Print("\nEnter the authorization code: ")
	authCode, err := readLine()
	if err != nil {
		logrus.Fatalf("Unable to read authorization code: %v", err)
	}

	tok, err := oauthCfg.Exchange(context.Background(), authCode)
	if err != nil {
		logrus.Fatalf("Unable to retrieve token from web: %v", err)
	}

	fmt.Printf("\nRefresh Token: %s\n", tok.RefreshToken)
	fmt.Printf("Token Type: %s\n", tok.TokenType)
	fmt.Printf("Expiry: %v\n", tok.Expiry)

	fmt.Println("\nAdd the refresh token to your environment variables:")
	fmt.Printf("export GMAIL_REFRESH_TOKEN=\"%s\"\n", tok.RefreshToken)
}

func storeLLMKey(provider string) error {
	store, err := credential.Open()
	if err != nil {
		return err
	}
	fmt.Printf("Enter the %s API key: ", provider)
	key, err := readLine()
	if err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("empty key")
	}
	return store.Set(credential.LLMKey(provider), key)
}

func readLine() (string, error) {
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
