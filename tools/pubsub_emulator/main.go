package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var eventsTopic = "risa-events"
var jobsTopic = "risa-jobs"

var eventsSubscription = "risa-events"
var jobsSubscription = "risa-jobs"

func main() {
	ctx := context.Background()

	os.Setenv("PUBSUB_EMULATOR_HOST", "localhost:8085")

	projectID := flag.String("project", "risa-emulator", "emulator project")
	flag.Parse()

	log.Print("New client for project " + *projectID)
	client, err := pubsub.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatalf("pubsub.NewClient: %v", err)
	}

	log.Print("Create Topic : " + eventsTopic)
	if _, err = client.CreateTopic(ctx, eventsTopic); err != nil && status.Code(err) != codes.AlreadyExists {
		log.Fatalf("pubsub.CreateTopic: %v", err)
	}

	log.Print("Create Topic : " + jobsTopic)
	if _, err = client.CreateTopic(ctx, jobsTopic); err != nil && status.Code(err) != codes.AlreadyExists {
		log.Fatalf("pubsub.CreateTopic: %v", err)
	}

	log.Print("Create Subscription : " + eventsSubscription)
	if _, err = client.CreateSubscription(ctx, eventsSubscription, pubsub.SubscriptionConfig{
		Topic:       client.Topic(eventsTopic),
		AckDeadline: 10 * time.Second,
	}); err != nil && status.Code(err) != codes.AlreadyExists {
		log.Fatalf("CreateSubscription: %v", err)
	}

	log.Print("Create Subscription : " + jobsSubscription)
	if _, err = client.CreateSubscription(ctx, jobsSubscription, pubsub.SubscriptionConfig{
		Topic:       client.Topic(jobsTopic),
		AckDeadline: 10 * time.Second,
	}); err != nil && status.Code(err) != codes.AlreadyExists {
		log.Fatalf("CreateSubscription: %v", err)
	}

	log.Print("Done!")
}
