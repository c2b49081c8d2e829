package command

import (
	"bytes"
	"flag"
	"testing"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seaweedfs/ramtier/weed/namespace"
	"github.com/seaweedfs/ramtier/weed/sequence"
	"github.com/seaweedfs/ramtier/weed/util"
)

func TestScaffoldConfigurationLoads(t *testing.T) {
	conf := util.NewViperProxy()
	conf.SetConfigType("toml")
	require.NoError(t, conf.ReadConfig(bytes.NewBufferString(RAMTIER_TOML_EXAMPLE)))
	conf.Set(MasterMetaDir, t.TempDir())

	sc, err := loadServerConfig(conf)
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp"}, sc.dirs)
	require.Len(t, sc.ramVolumes, 1)
	assert.Equal(t, "ram0", sc.ramVolumes[0].Name)
	assert.Equal(t, uint64(64*humanize.MiByte), sc.ramVolumes[0].Capacity)
	assert.Equal(t, 5*time.Second, sc.volumePulse)
	assert.Equal(t, 60*time.Second, sc.lazyWriter.Interval)
	assert.Equal(t, 5*time.Second, sc.lazyWriter.MinDwell)
	assert.Equal(t, 0.9, sc.lazyWriter.HighWaterMark)
	assert.Equal(t, 0.75, sc.lazyWriter.LowWaterMark)
	assert.Equal(t, 4, sc.lazyWriter.Parallelism)
	assert.Equal(t, 300*time.Second, sc.master.ScrubberInterval)
	assert.Equal(t, 30*time.Second, sc.master.DeadTimeout)
	assert.Equal(t, 5*time.Second, sc.master.Pulse)

	sequencer, err := sc.newSequencer("127.0.0.1:9333")
	require.NoError(t, err)
	assert.IsType(t, &sequence.SnowflakeSequencer{}, sequencer)

	store, err := namespace.LoadFileStore(conf, MasterMetaPrefix)
	require.NoError(t, err)
	defer store.Shutdown()
	assert.Equal(t, "leveldb", store.GetName())
}

func TestServerDefaultsAndFlags(t *testing.T) {
	conf := util.NewViperProxy()
	setServerDefaults(conf)

	var options ServerOptions
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	options.bind(fs)
	require.NoError(t, fs.Parse([]string{
		"-dir=/data1, /data2",
		"-ram.capacity=1GiB",
		"-ram.count=2",
		"-lazyWriter.minDwell=1s",
		"-lazyWriter.parallelism=8",
		"-scrubber.interval=0s",
	}))
	options.applyFlags(fs, conf)

	sc, err := loadServerConfig(conf)
	require.NoError(t, err)
	assert.Equal(t, []string{"/data1", "/data2"}, sc.dirs)
	require.Len(t, sc.ramVolumes, 2)
	assert.Equal(t, "ram1", sc.ramVolumes[1].Name)
	assert.Equal(t, uint64(humanize.GiByte), sc.ramVolumes[1].Capacity)
	assert.Equal(t, time.Second, sc.lazyWriter.MinDwell)
	assert.Equal(t, 8, sc.lazyWriter.Parallelism)
	assert.Equal(t, 60*time.Second, sc.lazyWriter.Interval)
	assert.Equal(t, time.Duration(0), sc.master.ScrubberInterval)

	sequencer, err := sc.newSequencer("127.0.0.1:9333")
	require.NoError(t, err)
	assert.IsType(t, &sequence.SnowflakeSequencer{}, sequencer)

	conf.Set(MasterSequencerType, "memory")
	sc, err = loadServerConfig(conf)
	require.NoError(t, err)
	sequencer, err = sc.newSequencer("127.0.0.1:9333")
	require.NoError(t, err)
	assert.IsType(t, &sequence.MemorySequencer{}, sequencer)
}

func TestServerConfigRejectsBadValues(t *testing.T) {
	for name, override := range map[string][2]string{
		"water marks":  {LazyWriterLowWaterMark, "0.95"},
		"ram capacity": {VolumeRamCapacity, "plenty"},
		"ram count":    {VolumeRamCount, "0"},
		"dead timeout": {MasterDeadTimeout, "0s"},
		"no directory": {VolumeDir, " , "},
		"neg dwell":    {LazyWriterMinDwell, "-1s"},
	} {
		t.Run(name, func(t *testing.T) {
			conf := util.NewViperProxy()
			setServerDefaults(conf)
			conf.Set(override[0], override[1])
			_, err := loadServerConfig(conf)
			assert.Error(t, err)
		})
	}

	sc := &serverConfig{sequencerType: "raft"}
	_, err := sc.newSequencer("127.0.0.1:9333")
	assert.Error(t, err)
}
