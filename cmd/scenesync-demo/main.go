package main

import "github.com/GameNetworking/NetworkSynchronizer-sub000/cmd/scenesync-demo/cmd"

func main() {
	cmd.Execute()
}
