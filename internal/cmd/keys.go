package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	mw "github.com/skorper/harmony/internal/api/middleware"
	"github.com/skorper/harmony/internal/store"
	"github.com/skorper/harmony/pkg/models"
)

// rawKeyPrefix starts every issued key so leaked keys are easy to spot.
const rawKeyPrefix = "hm_"

var bcryptCost = bcrypt.DefaultCost

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Issue a new API key",
	Long: `Issue a new API key for a user. The raw key is printed once and cannot
be recovered afterwards; only its bcrypt hash is stored.

Examples:
  # Key for a regular user
  harmonyctl keys create --user joe --name laptop

  # Key that may read and cancel every user's jobs
  harmonyctl keys create --user adam --admin`,
	RunE: runKeysCreate,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live API keys",
	RunE:  runKeysList,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <keyID>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysRevoke,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysCreateCmd, keysListCmd, keysRevokeCmd)

	keysCreateCmd.Flags().String("user", "", "Username the key authenticates as (required)")
	keysCreateCmd.Flags().String("name", "default", "Human readable label for the key")
	keysCreateCmd.Flags().Bool("admin", false, "Grant the admin scope")
	_ = keysCreateCmd.MarkFlagRequired("user")

	keysListCmd.Flags().String("user", "", "Only list keys of this user")
	keysListCmd.Flags().Bool("json", false, "Output as JSON")
}

func generateKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return rawKeyPrefix + hex.EncodeToString(b), nil
}

func runKeysCreate(cmd *cobra.Command, _ []string) error {
	username, _ := cmd.Flags().GetString("user")
	name, _ := cmd.Flags().GetString("name")
	admin, _ := cmd.Flags().GetBool("admin")

	username = strings.TrimSpace(username)
	if username == "" {
		return errors.New("--user must not be empty")
	}

	raw, err := generateKey()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash key: %w", err)
	}

	scopes := []string{}
	if admin {
		scopes = append(scopes, models.ScopeAdmin)
	}
	now := time.Now().UTC()
	key := &models.APIKey{
		ID:        uuid.New(),
		Username:  username,
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: raw[:mw.KeyPrefixLen],
		Scopes:    scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}

	b, err := openBackend(cmd.Context())
	if err != nil {
		return err
	}
	defer b.close()

	if err := b.keys.CreateAPIKey(cmd.Context(), key); err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Created key %s for %s\n", key.ID, key.Username)
	_, _ = fmt.Fprintln(out, raw)
	return nil
}

func runKeysList(cmd *cobra.Command, _ []string) error {
	username, _ := cmd.Flags().GetString("user")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	b, err := openBackend(cmd.Context())
	if err != nil {
		return err
	}
	defer b.close()

	keys, err := b.keys.ListAPIKeys(cmd.Context(), username)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	if jsonOutput {
		if keys == nil {
			keys = []*models.APIKey{}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(keys)
	}

	if len(keys) == 0 {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No keys found")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "ID\tUSER\tNAME\tPREFIX\tSCOPES\tLAST USED\tCREATED")
	for _, k := range keys {
		lastUsed := "-"
		if k.LastUsedAt != nil {
			lastUsed = k.LastUsedAt.Format(time.RFC3339)
		}
		scopes := strings.Join(k.Scopes, ",")
		if scopes == "" {
			scopes = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			k.ID, k.Username, k.Name, k.KeyPrefix, scopes, lastUsed, k.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func runKeysRevoke(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid key id %q: %w", args[0], err)
	}

	b, err := openBackend(cmd.Context())
	if err != nil {
		return err
	}
	defer b.close()

	if err := b.keys.RevokeAPIKey(cmd.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("api key %s not found", id)
		}
		return fmt.Errorf("revoke api key: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Revoked key %s\n", id)
	return nil
}
