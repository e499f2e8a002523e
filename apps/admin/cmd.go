package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/document"
	"github.com/trezcool/colegio/core/quota"
	"github.com/trezcool/colegio/core/user"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf     *core.Config
	db       *sqlx.DB
	usrSvc   *user.Service
	docSvc   *document.Service
	quotaSvc *quota.Service
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, ...)")
	_, _ = fmt.Fprintln(cli.out, "  adduser -name NAME -email EMAIL [-roles ROLE,ROLE] - create a user")
	_, _ = fmt.Fprintln(cli.out, "  token -user ID - print a bearer token for a user")
	_, _ = fmt.Fprintln(cli.out, "  cleanup -institution ID - remove orphaned document files and recalculate usage")
	_, _ = fmt.Fprintln(cli.out, "  setlimits -institution ID [-documents BYTES] [-evidences BYTES] - override storage limits")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserRoles := addUserCmd.String("roles", "", "Comma separated roles, eg: RECTOR,DOCENTE.")

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenUser := tokenCmd.String("user", "", "The user's ID.")

	cleanupCmd := flag.NewFlagSet("cleanup", flag.ContinueOnError)
	cleanupInstitution := cleanupCmd.String("institution", "", "The institution's ID.")

	limitsCmd := flag.NewFlagSet("setlimits", flag.ContinueOnError)
	limitsInstitution := limitsCmd.String("institution", "", "The institution's ID.")
	limitsDocuments := limitsCmd.Int64("documents", -1, "Documents limit in bytes (0: unlimited).")
	limitsEvidences := limitsCmd.Int64("evidences", -1, "Evidences limit in bytes (0: unlimited).")

	for _, fs := range []*flag.FlagSet{addUserCmd, tokenCmd, cleanupCmd, limitsCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2], args[3:]...)

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserName == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(ctx, *addUserName, *addUserEmail, splitList(*addUserRoles))

	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *tokenUser == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(ctx, *tokenUser)

	case "cleanup":
		if err := cleanupCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *cleanupInstitution == "" {
			cleanupCmd.Usage()
			return errHelp
		}
		return cli.cleanup(ctx, *cleanupInstitution)

	case "setlimits":
		if err := limitsCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *limitsInstitution == "" || (*limitsDocuments < 0 && *limitsEvidences < 0) {
			limitsCmd.Usage()
			return errHelp
		}
		var limits quota.Limits
		if *limitsDocuments >= 0 {
			limits.DocumentsLimit = limitsDocuments
		}
		if *limitsEvidences >= 0 {
			limits.EvidencesLimit = limitsEvidences
		}
		return cli.setLimits(ctx, *limitsInstitution, limits)

	default:
		cli.printUsage()
		return errHelp
	}
}

func splitList(s string) []string {
	items := make([]string, 0)
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
