package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"

	"banchod/store"
)

// RunCLI handles subcommand execution. Returns true if a subcommand was
// handled, grounded on the teacher's own flag-free subcommand dispatch.
func RunCLI(args []string, dbPath string) bool {
	if len(args) == 0 {
		return false
	}

	subcmd := args[0]
	switch subcmd {
	case "version":
		fmt.Printf("banchod %s\n", Version)
		return true
	case "status":
		return cliStatus(dbPath)
	case "accounts":
		return cliAccounts(args[1:], dbPath)
	case "settings":
		return cliSettings(args[1:], dbPath)
	case "backup":
		return cliBackup(args[1:], dbPath)
	default:
		return false
	}
}

func openStoreOrExit(dbPath string) *store.Store {
	st, err := store.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	return st
}

func cliStatus(dbPath string) bool {
	st := openStoreOrExit(dbPath)
	defer st.Close()
	ctx := context.Background()

	n, err := st.AccountCount(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Database: %s\n", dbPath)
	fmt.Printf("Accounts: %s\n", humanize.Comma(int64(n)))
	fmt.Printf("Version: %s\n", Version)
	return true
}

func cliAccounts(args []string, dbPath string) bool {
	st := openStoreOrExit(dbPath)
	defer st.Close()
	ctx := context.Background()

	if len(args) == 0 || args[0] == "list" {
		accounts, err := st.ListAccounts(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if len(accounts) == 0 {
			fmt.Println("No accounts found.")
			return true
		}
		for _, a := range accounts {
			fmt.Printf("  [%d] %-20s privileges=%d\n", a.ID, a.Name, a.Privileges)
		}
		return true
	}

	if args[0] == "setpriv" && len(args) > 2 {
		id, err := strconv.ParseInt(args[1], 10, 32)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid account id %q\n", args[1])
			os.Exit(1)
		}
		priv, err := strconv.ParseUint(args[2], 10, 32)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid privileges %q\n", args[2])
			os.Exit(1)
		}
		if err := st.SetPrivileges(ctx, int32(id), uint32(priv)); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Set account %d privileges = %d\n", id, priv)
		return true
	}

	fmt.Fprintln(os.Stderr, "Usage: banchod accounts [list|setpriv <id> <privileges>]")
	os.Exit(1)
	return true
}

func cliSettings(args []string, dbPath string) bool {
	st := openStoreOrExit(dbPath)
	defer st.Close()
	ctx := context.Background()

	if len(args) == 0 || args[0] == "list" {
		settings, err := st.GetAllSettings(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		out, _ := json.MarshalIndent(settings, "", "  ")
		fmt.Println(string(out))
		return true
	}

	if args[0] == "set" && len(args) > 2 {
		key, value := args[1], args[2]
		if err := st.SetSetting(ctx, key, value); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Set %s = %s\n", key, value)
		return true
	}

	fmt.Fprintln(os.Stderr, "Usage: banchod settings [list|set <key> <value>]")
	os.Exit(1)
	return true
}

func cliBackup(args []string, dbPath string) bool {
	st := openStoreOrExit(dbPath)
	defer st.Close()

	outPath := "banchod-backup.db"
	if len(args) > 0 {
		outPath = args[0]
	}

	if err := st.Backup(outPath); err != nil {
		fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Database backed up to %s\n", outPath)
	return true
}
