package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ Registry         = (*AdapterRegistry)(nil)
	_ ConnectionBroker = (*Broker)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
