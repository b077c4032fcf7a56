package summary

var defaultProjections = map[string]string{
	"order": `{
		orderNumber: orderNumber,
		customer: {
			name: customerName || customer.name,
			email: customerEmail || customer.email,
			phone: customerPhone || customer.phone,
			id: customerRef._ref
		},
		totals: {
			subtotal: amountSubtotal,
			tax: amountTax,
			shipping: amountShipping,
			discount: amountDiscount,
			total: totalAmount || total,
			currency: currency
		},
		payment: {
			status: paymentStatus,
			method: paymentMethod,
			cardBrand: cardBrand,
			cardLast4: cardLast4,
			receiptUrl: receiptUrl
		},
		stripe: {
			sessionId: stripeSessionId,
			paymentIntentId: paymentIntentId,
			customerId: stripeCustomerId,
			checkoutStatus: stripeCheckoutStatus,
			lastSyncedAt: stripeLastSyncedAt
		},
		shipping: {
			carrier: shippingCarrier || selectedService.carrier,
			service: selectedService.service || shippingService,
			serviceCode: selectedService.serviceCode,
			amount: selectedService.amount,
			estimatedDelivery: selectedService.deliveryDays,
			address: shippingAddress
		},
		fulfillment: {
			status: fulfillment.status || fulfillmentStatus,
			trackingNumber: fulfillment.trackingNumber || trackingNumber,
			trackingUrl: fulfillment.trackingUrl || trackingUrl,
			labelUrl: fulfillment.labelUrl || shippingLabelUrl,
			shippedAt: fulfillment.shippedAt || shippedAt,
			deliveredAt: fulfillment.deliveredAt || deliveredAt
		},
		cart: cart[:25].{
			name: name || productName,
			sku: sku,
			productId: productRef._ref || product._ref,
			quantity: quantity,
			price: price,
			total: total || lineTotal,
			metadata: metadata,
			options: optionDetails,
			upgrades: upgrades
		},
		events: orderEvents[:25].{
			type: type,
			status: status,
			label: label,
			message: message,
			at: createdAt
		},
		shippingLog: shippingLog[:25].{
			status: status,
			message: message,
			trackingNumber: trackingNumber,
			at: createdAt
		}
	}`,
	"invoice": `{
		invoiceNumber: invoiceNumber,
		status: status,
		orderId: orderRef._ref,
		orderNumber: orderNumber,
		customerId: customerRef._ref,
		total: total,
		currency: currency,
		shipping: {
			carrier: shippingCarrier,
			trackingNumber: trackingNumber,
			labelUrl: shippingLabelUrl || labelUrl,
			shipTo: shipTo,
			weight: weight,
			dimensions: dimensions
		},
		stripe: {
			sessionId: stripeSessionId,
			paymentIntentId: paymentIntentId,
			invoiceId: stripeInvoiceId,
			status: stripeInvoiceStatus
		}
	}`,
	"shippingLabel": `{
		name: name,
		status: status,
		carrier: carrier,
		serviceCode: serviceCode,
		shipFrom: shipFrom,
		shipTo: shipTo,
		weight: weight,
		dimensions: dimensions,
		trackingNumber: trackingNumber,
		trackingUrl: trackingUrl,
		labelUrl: labelUrl,
		links: {
			orderId: orderRef._ref || metadata.orderId,
			invoiceId: invoiceRef._ref || metadata.invoiceId,
			orderNumber: metadata.orderNumber,
			invoiceNumber: metadata.invoiceNumber
		}
	}`,
	"product": `{
		slug: slug.current || slug,
		sku: sku
	}`,
	DefaultShape: `{
		title: title || name,
		slug: slug.current || slug
	}`,
}
