package logging

import (
	"log"
	"os"
)

var (
	Router   = log.New(os.Stdout, "[router] ", log.LstdFlags)
	LNURL    = log.New(os.Stdout, "[lnurl] ", log.LstdFlags)
	Scanner  = log.New(os.Stdout, "[scanner] ", log.LstdFlags)
	Poller   = log.New(os.Stdout, "[poller] ", log.LstdFlags)
	HTTP     = log.New(os.Stdout, "[http] ", log.LstdFlags)
	Internal = log.New(os.Stdout, "[internal] ", log.LstdFlags)
)
