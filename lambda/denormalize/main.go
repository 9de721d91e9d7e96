package main

import (
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/lambda/denormalize/handler"
	"github.com/aws/aws-lambda-go/lambda"
)

func main() {
	lambda.Start(handler.DenormalizeHandler)
}
