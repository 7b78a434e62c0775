package main

import (
	"chargepoint/server"
	"log"
)

func main() {

	chargeStation, err := server.NewChargeStation()
	if err != nil {
		log.Println("charge station initialization failed", err)
		return
	}
	chargeStation.Start()

}
