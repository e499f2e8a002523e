package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	echoapi "github.com/trezcool/colegio/apps/api/echo"
	"github.com/trezcool/colegio/core/quota"
	"github.com/trezcool/colegio/core/user"
)

// addUser creates a user.User and prints its ID
func (cli *commandLine) addUser(ctx context.Context, name, email string, roles []string) error {
	usr, err := cli.usrSvc.Create(ctx, user.NewUser{Name: name, Email: email, Roles: roles})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cli.out, usr.ID)
	return nil
}

// token prints a bearer token for the user, for local development
func (cli *commandLine) token(ctx context.Context, userID string) error {
	usr, err := cli.usrSvc.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	tok, err := echoapi.GenerateToken(echoapi.GetUserClaims(usr, cli.conf), cli.conf.SecretKey)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	_, _ = fmt.Fprintln(cli.out, tok)
	return nil
}

func (cli *commandLine) cleanup(ctx context.Context, institutionID string) error {
	res, err := cli.docSvc.CleanupOrphanedFiles(ctx, institutionID)
	if err != nil {
		return err
	}
	for _, path := range res.DeletedFiles {
		_, _ = fmt.Fprintln(cli.out, "deleted", path)
	}
	_, _ = fmt.Fprintln(cli.out, res.Message)
	return nil
}

func (cli *commandLine) setLimits(ctx context.Context, institutionID string, limits quota.Limits) error {
	if _, err := cli.quotaSvc.SetLimits(ctx, institutionID, limits); err != nil {
		return err
	}
	snap, err := cli.quotaSvc.Snapshot(ctx, institutionID)
	if err != nil {
		return errors.Wrap(err, "getting storage usage")
	}
	_, _ = fmt.Fprintf(cli.out, "documents: %s / %s\n", snap.Documents.UsedHuman, snap.Documents.LimitHuman)
	_, _ = fmt.Fprintf(cli.out, "evidences: %s / %s\n", snap.Evidences.UsedHuman, snap.Evidences.LimitHuman)
	return nil
}
