// Package main is the operator CLI for key generation, schema migrations,
// development tokens and the institution capability.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	idservice "ekyc/internal/identity/service"
	idstore "ekyc/internal/identity/store"
	jwttoken "ekyc/internal/jwt_token"
	"ekyc/internal/ledger"
	"ekyc/internal/platform/config"
	"ekyc/internal/platform/database"
	"ekyc/internal/signature"
	"ekyc/migrations"
	"ekyc/pkg/domain"
	"ekyc/pkg/secrets"
)

const commandTimeout = 3 * time.Minute

type tokenOutput struct {
	Token     string `json:"token"`
	Type      string `json:"type"`
	ExpiresIn string `json:"expires_in"`
	UserID    string `json:"user_id"`
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	// Validate is skipped: token minting needs none of the backends.
	_ = godotenv.Load() //nolint:errcheck // .env is optional
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch os.Args[1] {
	case "keygen":
		err = runKeygen(os.Args[2:], os.Stdout)
	case "migrate":
		err = runMigrate(ctx, cfg, os.Stdout)
	case "token":
		err = runToken(os.Args[2:], cfg, os.Stdout)
	case "grant-institution":
		err = runGrant(ctx, os.Args[2:], cfg, os.Stdout)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: ekyctl <command> [flags]

Commands:
  keygen              print a fresh JWT signing key and operator wallet key as .env lines
  migrate             apply pending database migrations
  token               mint an access token signed with JWT_SIGNING_KEY
  grant-institution   grant (or -revoke) the institution capability for a wallet

Run 'ekyctl <command> -h' for command flags.
`)
}

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	custodial := fs.Int("custodial", 0, "Also generate this many custodial wallet keys")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *custodial < 0 {
		return errors.New("-custodial must not be negative")
	}

	signingKey, err := secrets.GenerateSigningKey()
	if err != nil {
		return err
	}
	operator, err := secrets.GenerateWalletKey()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "JWT_SIGNING_KEY=%s\n", signingKey)
	fmt.Fprintf(out, "# operator %s\n", operator.Address.Checksum())
	fmt.Fprintf(out, "OPERATOR_PRIVATE_KEY=%s\n", operator.PrivateKeyHex)

	if *custodial == 0 {
		return nil
	}
	pairs := make([]string, 0, *custodial)
	for i := 0; i < *custodial; i++ {
		k, err := secrets.GenerateWalletKey()
		if err != nil {
			return err
		}
		pairs = append(pairs, k.Address.Checksum()+"="+k.PrivateKeyHex)
	}
	_, err = fmt.Fprintf(out, "LEDGER_CUSTODIAL_KEYS=%s\n", strings.Join(pairs, ","))
	return err
}

func runMigrate(ctx context.Context, cfg config.Config, out io.Writer) error {
	pool, err := database.New(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if pool == nil {
		return errors.New("DATABASE_URL is required")
	}
	defer pool.Close() //nolint:errcheck // process exits right after

	applied, err := database.Migrate(ctx, pool.DB(), migrations.FS)
	for _, name := range applied {
		fmt.Fprintln(out, "applied", name)
	}
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(out, "schema is up to date")
	}
	return nil
}

func runToken(args []string, cfg config.Config, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	userID := fs.String("user-id", "", "User ID (UUID). Generated if empty.")
	wallet := fs.String("wallet", "", "Wallet address claim (optional)")
	institution := fs.Bool("institution", false, "Set the institution claim")
	ttl := fs.Duration("ttl", cfg.Server.TokenTTL, "Token time-to-live")
	asJSON := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	id := domain.NewUserID()
	if *userID != "" {
		parsed, err := domain.ParseUserID(*userID)
		if err != nil {
			return err
		}
		id = parsed
	}
	var addr domain.WalletAddress
	if *wallet != "" {
		parsed, err := domain.ParseWalletAddress(*wallet)
		if err != nil {
			return err
		}
		addr = parsed
	}

	svc := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, "ekyc", *ttl)
	token, err := svc.GenerateAccessToken(context.Background(), id, addr, *institution)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}

	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(tokenOutput{Token: token, Type: "Bearer", ExpiresIn: ttl.String(), UserID: id.String()})
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

// runGrant flips the institution flag on the stored identity and mirrors it
// on the registry contract's verifier role when an Ethereum ledger is
// configured.
func runGrant(ctx context.Context, args []string, cfg config.Config, out io.Writer) error {
	fs := flag.NewFlagSet("grant-institution", flag.ContinueOnError)
	wallet := fs.String("wallet", "", "Wallet address of the identity (required)")
	revoke := fs.Bool("revoke", false, "Revoke instead of grant")
	skipLedger := fs.Bool("skip-ledger", false, "Only update the database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := domain.ParseWalletAddress(*wallet)
	if err != nil {
		return err
	}

	pool, err := database.New(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if pool == nil {
		return errors.New("DATABASE_URL is required")
	}
	defer pool.Close() //nolint:errcheck // process exits right after

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	store := idstore.NewPostgres(pool.DB())
	identity, err := store.FindByWallet(ctx, addr)
	if err != nil {
		return fmt.Errorf("find identity for %s: %w", addr.Checksum(), err)
	}
	svc := idservice.NewService(store, signature.NewVerifier(), logger)
	if err := svc.SetInstitution(ctx, identity.ID, !*revoke); err != nil {
		return err
	}
	fmt.Fprintf(out, "identity %s institution=%t\n", identity.ID, !*revoke)

	if *skipLedger || cfg.Ledger.Backend != "ethereum" {
		return nil
	}
	keys, err := ledger.NewKeyring(cfg.Ledger.OperatorKey, nil)
	if err != nil {
		return err
	}
	eth, client, err := ledger.Dial(ctx, cfg.Ledger, keys, ledger.WithLogger(logger))
	if err != nil {
		return err
	}
	defer client.Close()

	method := ledger.MethodAddVerifier
	if *revoke {
		method = ledger.MethodRemoveVerifier
	}
	receipt, err := eth.Submit(ctx, ledger.Call{Method: method, Args: ledger.VerifierArgs(addr)})
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	fmt.Fprintf(out, "%s confirmed in block %d (tx %s)\n", method, receipt.BlockNumber, receipt.TxHash)
	return nil
}
