package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

const (
	AttrHandleStatus    = attribute.Key("kcore.handle.status")
	AttrPollErrorClass  = attribute.Key("kcore.poll.error_class")
	AttrProduceStatus   = attribute.Key("kcore.produce.status")
	AttrErrorAction     = attribute.Key("kcore.error.action")
	AttrProvisionStatus = attribute.Key("kcore.topic.provision_status")
	AttrSubscription    = attribute.Key("kcore.subscription")
)

// Handle status values
const (
	StatusSuccess = "success"
	StatusDropped = "dropped"
	StatusDLQ     = "dlq"
	StatusFailed  = "failed"
	StatusError   = "error"
)

// Poll error classes
const (
	ErrorClassTransient = "transient"
	ErrorClassFatal     = "fatal"
)

// Provision status values
const (
	ProvisionCreated = "created"
	ProvisionExisted = "exists"
	ProvisionFailed  = "failed"
)
