package command

import (
	"flag"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/mux"

	"github.com/seaweedfs/ramtier/weed/namespace"
	"github.com/seaweedfs/ramtier/weed/sequence"
	weed_server "github.com/seaweedfs/ramtier/weed/server"
	"github.com/seaweedfs/ramtier/weed/stats"
	"github.com/seaweedfs/ramtier/weed/storage"
	"github.com/seaweedfs/ramtier/weed/util"
	"github.com/seaweedfs/ramtier/weed/util/grace"
)

const (
	VolumeDir                  = "volume.dir"
	VolumePulse                = "volume.pulse"
	VolumeRamCapacity          = "volume.ram.capacity"
	VolumeRamCount             = "volume.ram.count"
	LazyWriterInterval         = "lazy_writer.interval"
	LazyWriterMinDwell         = "lazy_writer.min_dwell"
	LazyWriterHighWaterMark    = "lazy_writer.high_water_mark"
	LazyWriterLowWaterMark     = "lazy_writer.low_water_mark"
	LazyWriterParallelism      = "lazy_writer.parallelism"
	ScrubberInterval           = "scrubber.interval"
	MasterPulse                = "master.pulse"
	MasterDeadTimeout          = "master.dead_timeout"
	MasterMetaPrefix           = "master.meta."
	MasterMetaStore            = MasterMetaPrefix + "store"
	MasterMetaDir              = MasterMetaPrefix + "dir"
	MasterSequencerType        = "master.sequencer.type"
	MasterSequencerSnowflakeId = "master.sequencer.snowflake_id"
)

var (
	s ServerOptions
)

type ServerOptions struct {
	ip          *string
	port        *int
	masterPort  *int
	metricsPort *int
	maxCpu      *int
	cpuProfile  *string
	memProfile  *string
	debugPort   *int

	// flag name to configuration key, applied only when the flag is set
	overrides map[string]string
}

func init() {
	cmdServer.Run = runServer // break init cycle
	s.bind(&cmdServer.Flag)
}

func (o *ServerOptions) bind(fs *flag.FlagSet) {
	o.ip = fs.String("ip", "127.0.0.1", "ip or server name, also used as identifier")
	o.port = fs.Int("port", 8080, "volume server http listen port")
	o.masterPort = fs.Int("master.port", 9333, "master server http listen port")
	o.metricsPort = fs.Int("metricsPort", 0, "Prometheus metrics listen port")
	o.maxCpu = fs.Int("maxCpu", 0, "maximum number of CPUs. 0 means all available CPUs")
	o.cpuProfile = fs.String("cpuprofile", "", "cpu profile output file")
	o.memProfile = fs.String("memprofile", "", "memory profile output file")
	o.debugPort = fs.Int("debug.port", 0, "http port for pprof debugging, 0 disables it")

	o.overrides = map[string]string{
		"dir":                      VolumeDir,
		"ram.capacity":             VolumeRamCapacity,
		"ram.count":                VolumeRamCount,
		"pulse":                    VolumePulse,
		"lazyWriter.interval":      LazyWriterInterval,
		"lazyWriter.minDwell":      LazyWriterMinDwell,
		"lazyWriter.highWaterMark": LazyWriterHighWaterMark,
		"lazyWriter.lowWaterMark":  LazyWriterLowWaterMark,
		"lazyWriter.parallelism":   LazyWriterParallelism,
		"scrubber.interval":        ScrubberInterval,
		"master.deadTimeout":       MasterDeadTimeout,
		"master.meta.store":        MasterMetaStore,
		"master.meta.dir":          MasterMetaDir,
	}
	fs.String("dir", "", "directories to store persisted blocks. dir[,dir]...")
	fs.String("ram.capacity", "", "capacity of each RAM volume, e.g. 64MiB")
	fs.Int("ram.count", 0, "number of RAM volumes")
	fs.Duration("pulse", 0, "interval between heartbeats to the master")
	fs.Duration("lazyWriter.interval", 0, "interval of the lazy writer, 0 disables it")
	fs.Duration("lazyWriter.minDwell", 0, "minimum age before a RAM block is persisted")
	fs.Float64("lazyWriter.highWaterMark", 0, "RAM usage ratio that starts eviction")
	fs.Float64("lazyWriter.lowWaterMark", 0, "RAM usage ratio that stops eviction")
	fs.Int("lazyWriter.parallelism", 0, "concurrent block persists per lazy writer cycle")
	fs.Duration("scrubber.interval", 0, "interval of the lazy persist file scrubber, 0 disables it")
	fs.Duration("master.deadTimeout", 0, "a data node without heartbeat for this long is dead")
	fs.String("master.meta.store", "", "[memory|leveldb] file metadata store")
	fs.String("master.meta.dir", "", "directory of the leveldb file metadata store")
}

var cmdServer = &Command{
	UsageLine: "server -dir=/tmp -ram.capacity=64MiB",
	Short:     "start a master and a volume server with a RAM tier",
	Long: `start a master and a volume server in one process.

  Blocks of lazy persist files are written to the RAM tier of the volume server,
  persisted to -dir in the background and evicted from RAM under memory pressure.
  Defaults come from ramtier.toml, see "weed scaffold".

  `,
}

// applyFlags copies explicitly set flags into the configuration.
func (o *ServerOptions) applyFlags(fs *flag.FlagSet, conf *util.ViperProxy) {
	fs.Visit(func(f *flag.Flag) {
		if key, found := o.overrides[f.Name]; found {
			conf.Set(key, f.Value.String())
		}
	})
}

func setServerDefaults(conf util.Configuration) {
	conf.SetDefault(VolumeDir, ".")
	conf.SetDefault(VolumePulse, 5*time.Second)
	conf.SetDefault(VolumeRamCapacity, "64MiB")
	conf.SetDefault(VolumeRamCount, 1)
	conf.SetDefault(LazyWriterInterval, 60*time.Second)
	conf.SetDefault(LazyWriterMinDwell, 5*time.Second)
	conf.SetDefault(LazyWriterHighWaterMark, 0.9)
	conf.SetDefault(LazyWriterLowWaterMark, 0.75)
	conf.SetDefault(LazyWriterParallelism, 4)
	conf.SetDefault(ScrubberInterval, 300*time.Second)
	conf.SetDefault(MasterPulse, 5*time.Second)
	conf.SetDefault(MasterDeadTimeout, 30*time.Second)
	conf.SetDefault(MasterMetaStore, "memory")
	conf.SetDefault(MasterMetaDir, "./meta")
	conf.SetDefault(MasterSequencerType, "snowflake")
	conf.SetDefault(MasterSequencerSnowflakeId, 0)
}

type serverConfig struct {
	dirs          []string
	ramVolumes    []storage.RamVolumeOption
	volumePulse   time.Duration
	lazyWriter    storage.LazyWriterOption
	master        weed_server.MasterOption
	sequencerType string
	snowflakeId   int
}

func loadServerConfig(conf util.Configuration) (*serverConfig, error) {
	sc := &serverConfig{
		volumePulse: conf.GetDuration(VolumePulse),
		lazyWriter: storage.LazyWriterOption{
			Interval:      conf.GetDuration(LazyWriterInterval),
			MinDwell:      conf.GetDuration(LazyWriterMinDwell),
			HighWaterMark: conf.GetFloat64(LazyWriterHighWaterMark),
			LowWaterMark:  conf.GetFloat64(LazyWriterLowWaterMark),
			Parallelism:   conf.GetInt(LazyWriterParallelism),
		},
		master: weed_server.MasterOption{
			Pulse:            conf.GetDuration(MasterPulse),
			DeadTimeout:      conf.GetDuration(MasterDeadTimeout),
			ScrubberInterval: conf.GetDuration(ScrubberInterval),
		},
		sequencerType: conf.GetString(MasterSequencerType),
		snowflakeId:   conf.GetInt(MasterSequencerSnowflakeId),
	}
	for _, dir := range strings.Split(conf.GetString(VolumeDir), ",") {
		if dir = strings.TrimSpace(dir); dir != "" {
			sc.dirs = append(sc.dirs, util.ResolvePath(dir))
		}
	}
	if len(sc.dirs) == 0 {
		return nil, fmt.Errorf("%s: no directory configured", VolumeDir)
	}

	capacity, err := util.ParseCapacity(VolumeRamCapacity, conf.GetString(VolumeRamCapacity))
	if err != nil {
		return nil, err
	}
	count := conf.GetInt(VolumeRamCount)
	if count <= 0 || capacity == 0 {
		return nil, fmt.Errorf("%s %d with capacity %d: RAM tier needs at least one non empty volume", VolumeRamCount, count, capacity)
	}
	for i := 0; i < count; i++ {
		sc.ramVolumes = append(sc.ramVolumes, storage.RamVolumeOption{
			Name:     fmt.Sprintf("ram%d", i),
			Capacity: capacity,
		})
	}

	if err = sc.lazyWriter.Validate(); err != nil {
		return nil, err
	}
	if sc.master.DeadTimeout <= 0 {
		return nil, fmt.Errorf("%s must be positive, got %v", MasterDeadTimeout, sc.master.DeadTimeout)
	}
	return sc, nil
}

func (sc *serverConfig) newSequencer(masterAddress string) (sequence.Sequencer, error) {
	switch sc.sequencerType {
	case "snowflake":
		return sequence.NewSnowflakeSequencer(masterAddress, sc.snowflakeId)
	case "memory", "":
		return sequence.NewMemorySequencer(), nil
	}
	return nil, fmt.Errorf("unknown %s %q", MasterSequencerType, sc.sequencerType)
}

func runServer(cmd *Command, args []string) bool {
	util.LoadConfiguration("ramtier", false)
	conf := util.GetViper()
	setServerDefaults(conf)
	s.applyFlags(&cmd.Flag, conf)

	sc, err := loadServerConfig(conf)
	if err != nil {
		glog.Fatalf("load configuration: %v", err)
	}

	if *s.maxCpu < 1 {
		*s.maxCpu = runtime.NumCPU()
	}
	runtime.GOMAXPROCS(*s.maxCpu)
	grace.SetupProfiling(*s.cpuProfile, *s.memProfile)
	if *s.debugPort > 0 {
		grace.StartDebugServer(*s.debugPort)
	}

	for _, dir := range sc.dirs {
		util.Assert(util.TestFolderWritable(dir) != nil, "Check Data Folder(-dir) Writable %s", dir)
	}

	masterAddress := stats.JoinHostPort(*s.ip, *s.masterPort)
	sequencer, err := sc.newSequencer(masterAddress)
	if err != nil {
		glog.Fatalf("sequencer: %v", err)
	}
	fileStore, err := namespace.LoadFileStore(conf, MasterMetaPrefix)
	if err != nil {
		glog.Fatalf("file store: %v", err)
	}
	masterRouter := mux.NewRouter()
	ms, err := weed_server.NewMasterServer(masterRouter, &sc.master, fileStore, sequencer)
	if err != nil {
		glog.Fatalf("master server: %v", err)
	}

	store, err := storage.NewStore(&storage.StoreOption{
		Ip:          *s.ip,
		Port:        *s.port,
		RamVolumes:  sc.ramVolumes,
		Directories: sc.dirs,
	})
	if err != nil {
		glog.Fatalf("volume store: %v", err)
	}
	lazyWriter, err := storage.NewLazyWriter(store, &sc.lazyWriter, storage.FifoEvictionPolicy{})
	if err != nil {
		glog.Fatalf("lazy writer: %v", err)
	}
	volumeRouter := mux.NewRouter()
	vs := weed_server.NewVolumeServer(volumeRouter, store, lazyWriter, ms, &weed_server.VolumeServerOption{
		Pulse: sc.volumePulse,
	})

	ms.Start()
	vs.Start()
	grace.OnInterrupt(func() {
		vs.Shutdown()
		ms.Shutdown()
	})

	go stats.StartMetricsServer(*s.ip, *s.metricsPort)
	go func() {
		glog.V(0).Infof("Start master server at %s", masterAddress)
		if err := http.ListenAndServe(masterAddress, masterRouter); err != nil {
			glog.Fatalf("master server fail to serve: %v", err)
		}
	}()

	volumeAddress := stats.JoinHostPort(*s.ip, *s.port)
	glog.V(0).Infof("Start volume server %s at %s", util.Version(), volumeAddress)
	if err := http.ListenAndServe(volumeAddress, volumeRouter); err != nil {
		glog.Fatalf("volume server fail to serve: %v", err)
	}
	return true
}
