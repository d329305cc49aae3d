package main

import (
	"github.com/buildbeaver/jobvars/server/cmd/jobvars-tools/commands"
	_ "github.com/buildbeaver/jobvars/server/cmd/jobvars-tools/commands/dump"
	_ "github.com/buildbeaver/jobvars/server/cmd/jobvars-tools/commands/migrate"
	_ "github.com/buildbeaver/jobvars/server/cmd/jobvars-tools/commands/variables"
)

func main() {
	commands.Execute()
}
