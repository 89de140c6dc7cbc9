package opencollective

const orderFields = `
    id
    legacyId
    status
    frequency
    totalAmount {
      value
      currency
    }
    amount {
      value
      currency
    }
    toAccount {
      slug
    }
    fromAccount {
      slug
      name
    }`

const orderQuery = `
query ($order: OrderReferenceInput!) {
  order(order: $order) {` + orderFields + `
  }
}
`

const transactionQuery = `
query ($transaction: TransactionReferenceInput!) {
  transaction(transaction: $transaction) {
    id
    legacyId
    order {` + orderFields + `
    }
  }
}
`
