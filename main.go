package main

import "firestige.xyz/mrcpd/cmd"

func main() {
	cmd.Execute()
}
