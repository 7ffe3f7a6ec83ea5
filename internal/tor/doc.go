// Package tor runs an embedded Tor daemon for crawls that must go through
// the Tor network.
//
// The daemon is started with tornago and exposes a SOCKS5 address that the
// fetchers use as their proxy. This lets sitecrawl reach .onion sites, or
// crawl any site without revealing the client address, without a separately
// installed Tor service.
package tor
