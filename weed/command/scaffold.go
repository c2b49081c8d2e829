package command

import (
	"fmt"
	"os"
	"path/filepath"
)

func init() {
	cmdScaffold.Run = runScaffold // break init cycle
}

var cmdScaffold = &Command{
	UsageLine: "scaffold -config=ramtier",
	Short:     "generate basic configuration files",
	Long: `Generate ramtier.toml with all possible configurations for you to customize.

  The options can also be overwritten by environment variables.
  For example, the volume.ram.capacity can be overwritten by environment variable
    export WEED_VOLUME_RAM_CAPACITY=256MiB

  `,
}

var (
	outputPath = cmdScaffold.Flag.String("output", "", "if not empty, save the configuration file to this directory")
	config     = cmdScaffold.Flag.String("config", "ramtier", "[ramtier] the configuration file to generate")
)

func runScaffold(cmd *Command, args []string) bool {

	content := ""
	switch *config {
	case "ramtier":
		content = RAMTIER_TOML_EXAMPLE
	}
	if content == "" {
		println("need a valid -config option")
		return false
	}

	if *outputPath != "" {
		if err := os.WriteFile(filepath.Join(*outputPath, *config+".toml"), []byte(content), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "write %s.toml: %v\n", *config, err)
			return false
		}
	} else {
		println(content)
	}
	return true
}

const RAMTIER_TOML_EXAMPLE = `
# Put this file to one of the location, with descending priority
#    ./ramtier.toml
#    $HOME/.seaweedfs/ramtier.toml
#    /usr/local/etc/seaweedfs/ramtier.toml
#    /etc/seaweedfs/ramtier.toml
# Command line flags take precedence over these values.

[volume]
# comma separated directories holding persisted blocks
dir = "/tmp"
# seconds between heartbeats to the master
pulse = "5s"

[volume.ram]
# capacity of each RAM volume, accepts human readable sizes
capacity = "64MiB"
# number of RAM volumes
count = 1

[lazy_writer]
# how often RAM only blocks are persisted and memory pressure is checked, 0 disables the timer
interval = "60s"
# blocks younger than this stay RAM only
min_dwell = "5s"
# eviction starts when a RAM volume is fuller than high_water_mark
# and stops once it is below low_water_mark
high_water_mark = 0.9
low_water_mark = 0.75
# concurrent block persists per cycle
parallelism = 4

[scrubber]
# how often lazy persist files that lost every replica are removed, 0 disables it
interval = "300s"

[master]
# how often dead data nodes are collected
pulse = "5s"
# a data node without heartbeat for this long is dead
dead_timeout = "30s"

[master.meta]
# memory|leveldb
store = "leveldb"
dir = "./meta"

[master.sequencer]
# memory|snowflake
type = "snowflake"
# unique in the cluster, 0 derives it from the master address
snowflake_id = 0
`
