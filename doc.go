// Package polybot publishes one post to several social networks.
//
// The package holds the network-independent core: choosing the best fitting
// text among caller supplied candidates (Select), paginating long text into a
// thread (Wrap), and shrinking or converting images to what a network accepts
// (Normalize). Prepare combines the three for one network's Profile.
//
// Network adapters live under service/, persistent bot state under state/ and
// the bot lifecycle under bot/.
package polybot
