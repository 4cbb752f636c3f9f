package common

import (
	"bytes"
	"encoding/gob"
	"github.com/golang/snappy"
	"github.com/streadway/amqp"
	"sync"
)

const (
	DrawExchange = "draws"

	snappyEncoding = "snappy"
)

// Publisher hands answered draw batches to whoever listens downstream.
type Publisher interface {
	Publish(batch DrawBatch) error
	Close() error
}

func declareDrawExchange(amqpChan *amqp.Channel) error {
	return amqpChan.ExchangeDeclare(
		DrawExchange, // name
		"fanout",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
}

func EncodeDrawBatch(batch DrawBatch, compress bool) (body []byte, contentEncoding string, err error) {
	var marshalled bytes.Buffer
	if err = gob.NewEncoder(&marshalled).Encode(batch); err != nil {
		return
	}

	if !compress {
		return marshalled.Bytes(), "", nil
	}

	return snappy.Encode(nil, marshalled.Bytes()), snappyEncoding, nil
}

func DecodeDrawBatch(body []byte, contentEncoding string) (batch DrawBatch, err error) {
	if contentEncoding == snappyEncoding {
		if body, err = snappy.Decode(nil, body); err != nil {
			return
		}
	}

	err = gob.NewDecoder(bytes.NewBuffer(body)).Decode(&batch)
	return
}

type AMQPPublisher struct {
	amqpChan *amqp.Channel
	compress bool
}

// NewAMQPPublisher opens a channel on conn and declares the draw exchange.
// Channels are not shared, every worker should own its publisher.
func NewAMQPPublisher(conn *amqp.Connection, compress bool) (*AMQPPublisher, error) {
	amqpChan, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	if err = declareDrawExchange(amqpChan); err != nil {
		_ = amqpChan.Close()
		return nil, err
	}

	return &AMQPPublisher{amqpChan: amqpChan, compress: compress}, nil
}

func (p *AMQPPublisher) Publish(batch DrawBatch) error {
	body, contentEncoding, err := EncodeDrawBatch(batch, p.compress)
	if err != nil {
		return err
	}

	return p.amqpChan.Publish(
		DrawExchange,
		"",
		false,
		false,
		amqp.Publishing{
			ContentType:     "application/octet-stream",
			ContentEncoding: contentEncoding,
			Body:            body,
		})
}

func (p *AMQPPublisher) Close() error {
	return p.amqpChan.Close()
}

type AMQPConsumer struct {
	amqpConn  *amqp.Connection
	amqpChan  *amqp.Channel
	amqpQueue amqp.Queue

	queueName    string
	consumerName string

	amqpConsumer <-chan amqp.Delivery
	callback     func(amqp.Delivery) error
	onError      func(error)
	wg           sync.WaitGroup
}

func NewAMQPConsumer(url, queueName, consumerName string, callback func(amqp.Delivery) error, onError func(error)) (*AMQPConsumer, error) {
	var err error
	consumer := AMQPConsumer{
		callback: callback,
		onError:  onError,

		queueName:    queueName,
		consumerName: consumerName,
	}

	if consumer.amqpConn, err = amqp.Dial(url); err != nil {
		return nil, err
	}

	if consumer.amqpChan, err = consumer.amqpConn.Channel(); err != nil {
		_ = consumer.amqpConn.Close()
		return nil, err
	}

	if err = declareDrawExchange(consumer.amqpChan); err != nil {
		_ = consumer.amqpChan.Close()
		_ = consumer.amqpConn.Close()
		return nil, err
	}

	if consumer.amqpQueue, err = consumer.amqpChan.QueueDeclare(
		queueName, // name
		false,     // durable
		false,     // delete when unused
		true,      // exclusive
		false,     // no-wait
		nil,       // arguments
	); err != nil {
		_ = consumer.amqpChan.Close()
		_ = consumer.amqpConn.Close()
		return nil, err
	}

	if err = consumer.amqpChan.QueueBind(
		consumer.amqpQueue.Name, // queue name
		"",                      // routing key
		DrawExchange,            // exchange
		false,
		nil,
	); err != nil {
		_ = consumer.amqpChan.Close()
		_ = consumer.amqpConn.Close()
		return nil, err
	}

	return &consumer, nil
}

func (c *AMQPConsumer) Start() error {
	var err error

	if c.amqpConsumer, err = c.amqpChan.Consume(
		c.amqpQueue.Name, // queue
		c.consumerName,   // consumer
		true,             // auto-ack
		false,            // exclusive
		false,            // no-local
		false,            // no-wait
		nil,              // args
	); err != nil {
		return err
	}

	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		for delivery := range c.amqpConsumer {
			if err := c.callback(delivery); err != nil && c.onError != nil {
				c.onError(err)
			}
		}
	}()

	return nil
}

func (c *AMQPConsumer) Stop() error {
	return c.amqpChan.Cancel(c.consumerName, false)
}

func (c *AMQPConsumer) Wait() {
	c.wg.Wait()
}

func (c *AMQPConsumer) Close() error {
	var err error

	if err = c.amqpChan.Close(); err != nil {
		return err
	}

	if err = c.amqpConn.Close(); err != nil {
		return err
	}

	return nil
}

func ParseAMQPBatch(delivery *amqp.Delivery) (DrawBatch, error) {
	return DecodeDrawBatch(delivery.Body, delivery.ContentEncoding)
}
