package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/dcrodman/crowdchess/internal/core"
	"github.com/dcrodman/crowdchess/internal/core/auth"
	"github.com/dcrodman/crowdchess/internal/core/data"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Account management tools",
}

var accountAddCmd = &cobra.Command{
	Use:   "add [username] [password]",
	Short: "Registers new accounts in the database",
	Run:   AccountAddCommand,
}

var accountDeleteCmd = &cobra.Command{
	Use:   "delete [username]",
	Short: "Deletes accounts from the database",
	Run:   AccountDeleteCommand,
}

var PermanentFlag bool

func initDB() *gorm.DB {
	cfg, err := core.LoadConfig(ConfigFlag)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	// Change to the config directory so that relative paths in it resolve.
	if err := os.Chdir(ConfigFlag); err != nil {
		fmt.Println("error changing to config directory:", err)
		os.Exit(1)
	}

	dataSource := cfg.DatabaseURL()
	if strings.EqualFold(cfg.Database.Engine, "sqlite") {
		dataSource = cfg.QualifiedPath(cfg.Database.Filename)
	}
	dialector, err := data.Dialector(cfg.Database.Engine, dataSource)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	db, err := data.Initialize(dialector, cfg.Debugging.DatabaseLoggingEnabled)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	return db
}

func AccountAddCommand(cmd *cobra.Command, args []string) {
	db := initDB()
	defer data.Shutdown(db)

	username, args := popArg(args, "Username")
	password, _ := popArg(args, "Password")

	account, err := auth.CreateAccount(db, username, password)
	if err != nil {
		fmt.Printf("error creating account '%s': %v\n", username, err)
		return
	}
	fmt.Printf("created account for '%s' (ID: %d)\n", account.Username, account.ID)
}

func AccountDeleteCommand(cmd *cobra.Command, args []string) {
	db := initDB()
	defer data.Shutdown(db)

	username, _ := popArg(args, "Username")
	if err := auth.DeleteAccount(db, username, PermanentFlag); err != nil {
		fmt.Printf("error deleting account '%s': %v\n", username, err)
		return
	}
	fmt.Println("deleted account")
}

func popArg(args []string, prompt string) (string, []string) {
	if len(args) == 1 {
		return args[0], nil
	} else if len(args) > 1 {
		return args[0], args[1:]
	}

	fmt.Printf("%s: ", prompt)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Scan()
	return strings.TrimSpace(scanner.Text()), args
}
