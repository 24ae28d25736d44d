package config

import (
	"net"
	"net/url"
	"os"
	"strings"
	"sync"
)

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker returns true if the application is running inside a Docker container.
// Detection is based on the presence of /.dockerenv file which exists in all Docker containers.
// The result is cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker maps localhost to host.docker.internal when running
// in Docker so the database on the host machine stays reachable.
func ResolveHostForDocker(host string) string {
	if !IsRunningInDocker() {
		return host
	}
	return resolveHost(host)
}

func resolveHost(host string) string {
	if host == "localhost" || host == "127.0.0.1" {
		return "host.docker.internal"
	}
	return host
}

// ResolveConnectionStringForDocker applies ResolveHostForDocker to the host
// of a URL-form connection string. Other forms are returned unchanged.
func ResolveConnectionStringForDocker(connStr string) string {
	if !IsRunningInDocker() {
		return connStr
	}
	return rewriteConnectionHost(connStr)
}

func rewriteConnectionHost(connStr string) string {
	if !strings.Contains(connStr, "://") {
		return connStr
	}
	u, err := url.Parse(connStr)
	if err != nil || u.Host == "" {
		return connStr
	}

	host, port := u.Hostname(), u.Port()
	resolved := resolveHost(host)
	if resolved == host {
		return connStr
	}
	if port != "" {
		u.Host = net.JoinHostPort(resolved, port)
	} else {
		u.Host = resolved
	}
	return u.String()
}
