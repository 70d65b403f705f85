package config

import "github.com/spf13/viper"

// setDefaultConfig sets viper defaults for every setting, applied before the
// on-disk config file is read so missing keys fall back sensibly.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "transcribe-dispatch")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/dispatch.log")
	viper.SetDefault("main.log.rotation", string(RotationSize))
	viper.SetDefault("main.log.maxsize", int64(100*1024*1024))

	viper.SetDefault("queue.backend", "durable")
	viper.SetDefault("queue.durablepath", "data/queue")
	viper.SetDefault("queue.volatilehost", "127.0.0.1")
	viper.SetDefault("queue.pushport", 5555)
	viper.SetDefault("queue.pullport", 5556)
	viper.SetDefault("queue.controlport", 5557)
	viper.SetDefault("queue.highwatermark", 1000)
	viper.SetDefault("queue.maxqueuedepth", 10000)

	viper.SetDefault("tracker.maxretries", 3)
	viper.SetDefault("tracker.messagetimeout", "30s")
	viper.SetDefault("tracker.checkinterval", "5s")
	viper.SetDefault("tracker.cleanupage", "1h")
	viper.SetDefault("tracker.cleanupinterval", "10m")

	viper.SetDefault("worker.count", 2)
	viper.SetDefault("worker.binarypath", "")
	viper.SetDefault("worker.maxrestarts", 10)
	viper.SetDefault("worker.initialbackoff", "1s")
	viper.SetDefault("worker.maxbackoff", "60s")
	viper.SetDefault("worker.heartbeatinterval", "30s")
	viper.SetDefault("worker.responsetimeout", "30s")
	viper.SetDefault("worker.stoptimeout", "5s")

	viper.SetDefault("service.name", "transcribe-dispatch")
	viper.SetDefault("service.pidfile", "run/dispatch.pid")
	viper.SetDefault("service.listenhost", "127.0.0.1")

	viper.SetDefault("audio.device", "")
	viper.SetDefault("audio.sampleratehz", 16000)
	viper.SetDefault("audio.channels", 1)
	viper.SetDefault("audio.chunkdurationsecs", 5.0)
	viper.SetDefault("audio.minfinalchunkms", 100)

	viper.SetDefault("observability.enabled", true)
	viper.SetDefault("observability.listen", "127.0.0.1:9103")
}
