package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/robotalks/orbus.go/pkg/bridge/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/orbus/"
)

func init() {
	if val := os.Getenv("ORBUS_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}

	q.Sub("#", mqtt.Handler(func(topic string, payload []byte) {
		switch {
		case strings.Contains(topic, "/"+mqtt.TopicPackets):
			pkt, err := mqtt.DecodePacket(payload)
			if err != nil {
				log.Printf("%s: bad packet: %v", topic, err)
				return
			}
			log.Printf("%s: %s", topic, pkt.String())
		case strings.HasSuffix(topic, "/"+mqtt.TopicSend):
			pkts, err := mqtt.DecodeBatch(payload)
			if err != nil {
				log.Printf("%s: bad batch: %v", topic, err)
				return
			}
			for _, pkt := range pkts {
				log.Printf("%s: %s", topic, pkt.String())
			}
		default:
			log.Printf("%s: %s", topic, string(payload))
		}
	}))
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	<-(chan struct{})(nil)
}
