package source

import (
	"time"

	capi "github.com/hashicorp/consul/api"

	"github.com/bcsaller/disco/version"
)

// newConsulClient returns a Consul API client bounded by timeout and
// tagged with a disco-identifying User-Agent, so that requests made on
// behalf of a source are distinguishable in Consul's agent logs. TLS
// setup is left to capi.NewHttpClient, which builds the transport from
// config.TLSConfig; a source has no other consumer of that transport,
// so there's nothing to gain from building it out by hand here.
func newConsulClient(config *capi.Config, timeout time.Duration) (*capi.Client, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if config.HttpClient == nil {
		httpClient, err := capi.NewHttpClient(config.Transport, config.TLSConfig)
		if err != nil {
			return nil, err
		}
		httpClient.Timeout = timeout
		config.HttpClient = httpClient
	}

	client, err := capi.NewClient(config)
	if err != nil {
		return nil, err
	}
	client.AddHeader("User-Agent", "disco/"+version.GetHumanVersion())
	return client, nil
}
