package main

import "github.com/trezcool/colegio/storage/database"

var gooseRunFunc = database.RunMigrations // mockable

func (cli *commandLine) migrate(command string, args ...string) error {
	return gooseRunFunc(cli.db, command, args...)
}
