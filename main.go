package main

import (
	"github.com/okwama/moonsunclient-sub001/app"
)

func main() {
	a := app.New(nil, nil)
	a.Start()
}
