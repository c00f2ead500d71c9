package main

const (
	defaultConfigPath      = "vr2osc.yaml"
	defaultActionSetsDir   = "actions"
	defaultPollRate        = 60
	maxPollRate            = 1000
	defaultDestinationHost = "127.0.0.1"
	defaultDestinationPort = 9000
	defaultSocketPath      = "/tmp/vr2osc.sock"
	defaultManifestName    = "vr2osc.manifest.json"
)
